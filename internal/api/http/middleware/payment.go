package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paidwall/internal/api/http/handler"
	"paidwall/internal/apperrors"
	"paidwall/internal/config"
	"paidwall/internal/model"
	"paidwall/pkg/metrics"
	"paidwall/pkg/x402"
)

// Payment gates a route behind an x402 paywall. A request without a valid,
// verified and settled payment never reaches the handler; one that passes
// carries the payer identity in the context, extracted from the payment
// payload the facilitator verified, never from anything the client could
// set directly.
func Payment(log *zap.Logger, cfg config.Payment, client x402.FacilitatorClient, resource string) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	requirements := &model.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           cfg.Network,
		MaxAmountRequired: cfg.Price,
		Resource:          resource,
		Description:       "Post a message to the wall",
		MimeType:          "text/html",
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
		Asset:             cfg.Asset,
	}

	return func(c *gin.Context) {
		payload, err := x402.DecodePayment(c.GetHeader(x402.PaymentHeader))
		if err != nil {
			if !errors.Is(err, apperrors.ErrMissingPayment) {
				log.Warn("rejecting malformed payment header", zap.Error(err))
			}
			paymentRequired(c, err.Error(), requirements)
			return
		}

		ctx := c.Request.Context()

		verify, err := client.Verify(ctx, payload, requirements)
		if err != nil {
			log.Error("payment verification unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, handler.ResponseWithMessage{
				Status:  handler.StatusErr,
				Message: "payment verification unavailable",
			})
			return
		}

		if !verify.IsValid {
			log.Info("payment rejected", zap.String("reason", verify.InvalidReason))
			paymentRequired(c, verify.InvalidReason, requirements)
			return
		}

		settle, err := settlePayment(ctx, client, payload, requirements)
		if err != nil {
			metrics.SettlementsFailed.Inc()
			log.Error("payment settlement failed", zap.Error(err))
			paymentRequired(c, "settlement failed", requirements)
			return
		}

		if encoded, err := x402.EncodeSettlement(settle); err == nil {
			c.Header(x402.ResponseHeader, encoded)
		}

		payer := settle.Payer
		if payer == "" {
			payer = payload.Payload.Authorization.From
		}

		c.Set(model.PayerKey, payer)
		c.Next()
	}
}

func settlePayment(ctx context.Context, client x402.FacilitatorClient, payload *model.PaymentPayload, requirements *model.PaymentRequirements) (*model.SettleResponse, error) {
	settle, err := client.Settle(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}

	if !settle.Success {
		return nil, errors.New(settle.ErrorReason)
	}

	return settle, nil
}

func paymentRequired(c *gin.Context, reason string, requirements *model.PaymentRequirements) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, model.PaymentRequiredResponse{
		X402Version: x402.Version,
		Error:       reason,
		Accepts:     []model.PaymentRequirements{*requirements},
	})
}
