// Package x402 implements the client-facing half of the x402 payment
// protocol: decoding X-PAYMENT envelopes and talking to a facilitator for
// verification and settlement. Challenge/response details, settlement and
// pricing live on the facilitator side.
package x402

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

const (
	// PaymentHeader carries the base64 payment envelope on the request.
	PaymentHeader = "X-Payment"
	// ResponseHeader carries the base64 settlement result on the response.
	ResponseHeader = "X-Payment-Response"

	// Version is the only protocol version this package accepts.
	Version = 1

	// SchemeExact is the sole supported payment scheme.
	SchemeExact = "exact"
)

// DecodePayment parses a base64 X-PAYMENT header into a structurally valid
// payload. It fails closed: any missing field that would leave the payer
// identity unknown is an error, never a zero value that propagates.
func DecodePayment(header string) (*model.PaymentPayload, error) {
	if strings.TrimSpace(header) == "" {
		return nil, apperrors.ErrMissingPayment
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidPayment, err)
	}

	var payload model.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidPayment, err)
	}

	if payload.X402Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrInvalidPayment, payload.X402Version)
	}

	if payload.Scheme != SchemeExact {
		return nil, fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidPayment, payload.Scheme)
	}

	if payload.Network == "" {
		return nil, fmt.Errorf("%w: missing network", apperrors.ErrInvalidPayment)
	}

	if payload.Payload.Authorization.From == "" {
		return nil, apperrors.ErrNoPayer
	}

	return &payload, nil
}

// EncodeSettlement renders a settle result for the X-Payment-Response header.
func EncodeSettlement(res *model.SettleResponse) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

type FacilitatorClient interface {
	Verify(ctx context.Context, payload *model.PaymentPayload, reqs *model.PaymentRequirements) (*model.VerifyResponse, error)
	Settle(ctx context.Context, payload *model.PaymentPayload, reqs *model.PaymentRequirements) (*model.SettleResponse, error)
}

type facilitatorClient struct {
	baseURL string
	http    *http.Client
}

func NewFacilitatorClient(baseURL string, timeout time.Duration) FacilitatorClient {
	return &facilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type facilitatorRequest struct {
	X402Version         int                        `json:"x402Version"`
	PaymentPayload      *model.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *model.PaymentRequirements `json:"paymentRequirements"`
}

func (c *facilitatorClient) Verify(ctx context.Context, payload *model.PaymentPayload, reqs *model.PaymentRequirements) (*model.VerifyResponse, error) {
	var res model.VerifyResponse
	if err := c.post(ctx, "/verify", payload, reqs, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *facilitatorClient) Settle(ctx context.Context, payload *model.PaymentPayload, reqs *model.PaymentRequirements) (*model.SettleResponse, error) {
	var res model.SettleResponse
	if err := c.post(ctx, "/settle", payload, reqs, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *facilitatorClient) post(ctx context.Context, path string, payload *model.PaymentPayload, reqs *model.PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         Version,
		PaymentPayload:      payload,
		PaymentRequirements: reqs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}

	return nil
}
