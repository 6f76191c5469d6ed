package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
	"paidwall/pkg/metrics"
)

// tokenBytes sizes the pending token. 32 random bytes give 256 bits of
// entropy; tokens must be infeasible to predict or enumerate.
const tokenBytes = 32

type WallRepository interface {
	InsertPending(ctx context.Context, pending *model.PendingMessage) error
	GetPending(ctx context.Context, token string) (*model.PendingMessage, error)
	PromotePending(ctx context.Context, token, payer string) (*model.Message, error)
	ListMessages(ctx context.Context) ([]model.Message, error)
	DeleteMessage(ctx context.Context, id int64) (bool, error)
	DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error)
}

type Limits struct {
	MaxBodyLen    int
	MaxAuthorLen  int
	DefaultAuthor string
}

// WallService owns the two-phase message lifecycle: Submit parks a
// sanitized message behind a fresh token, Finalize promotes it exactly once
// with the verified payer, List and Remove serve the read and admin sides.
type WallService struct {
	log         *zap.Logger
	repo        WallRepository
	limits      Limits
	adminSecret string
}

func NewWallService(log *zap.Logger, repo WallRepository, limits Limits, adminSecret string) *WallService {
	return &WallService{
		log:         log,
		repo:        repo,
		limits:      limits,
		adminSecret: adminSecret,
	}
}

// Submit sanitizes the raw submission and parks it as a pending message.
// The token is returned only after the record is durably written; a storage
// failure never hands out a token.
func (s *WallService) Submit(ctx context.Context, rawBody, rawAuthor string) (string, error) {
	body, err := SanitizeBody(rawBody, s.limits.MaxBodyLen)
	if err != nil {
		metrics.SubmissionsRejected.Inc()
		return "", err
	}

	author, err := SanitizeAuthor(rawAuthor, s.limits.MaxAuthorLen, s.limits.DefaultAuthor)
	if err != nil {
		metrics.SubmissionsRejected.Inc()
		return "", err
	}

	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	pending := &model.PendingMessage{
		Token:  token,
		Body:   body,
		Author: author,
	}

	if err := s.repo.InsertPending(ctx, pending); err != nil {
		s.log.Error("failed to store pending message", zap.Error(err))
		return "", fmt.Errorf("failed to store pending message: %w", err)
	}

	metrics.SubmissionsTotal.Inc()
	s.log.Info("pending message stored",
		zap.String("token", token),
		zap.String("author", author),
	)

	return token, nil
}

// PendingExists reports whether a token still resolves, so the HTTP layer
// can bounce consumed tokens back to the wall before demanding payment.
func (s *WallService) PendingExists(ctx context.Context, token string) (bool, error) {
	if _, err := s.repo.GetPending(ctx, token); err != nil {
		if errors.Is(err, apperrors.ErrPendingNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Finalize promotes the pending message behind token into a committed
// Message stamped with payer. It is the only path that creates messages,
// and it is at-most-once per token: replays and unknown tokens come back as
// ErrPendingNotFound.
func (s *WallService) Finalize(ctx context.Context, token, payer string) (*model.Message, error) {
	if payer == "" {
		return nil, apperrors.ErrNoPayer
	}

	msg, err := s.repo.PromotePending(ctx, token, payer)
	if err != nil {
		if errors.Is(err, apperrors.ErrPendingNotFound) {
			metrics.FinalizeReplays.Inc()
			s.log.Info("finalize on unknown or consumed token", zap.String("token", token))
			return nil, err
		}

		s.log.Error("failed to finalize message", zap.String("token", token), zap.Error(err))
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	metrics.MessagesCommitted.Inc()
	s.log.Info("message committed",
		zap.Int64("id", msg.ID),
		zap.String("payer", payer),
	)

	return msg, nil
}

// List returns the wall, newest first.
func (s *WallService) List(ctx context.Context) ([]model.Message, error) {
	messages, err := s.repo.ListMessages(ctx)
	if err != nil {
		s.log.Error("failed to list messages", zap.Error(err))
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// Remove deletes a committed message after checking the shared admin
// secret. The credential check runs first so a bad secret never learns
// whether the id exists.
func (s *WallService) Remove(ctx context.Context, id int64, credential string) error {
	if s.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(credential), []byte(s.adminSecret)) != 1 {
		return apperrors.ErrUnauthorized
	}

	deleted, err := s.repo.DeleteMessage(ctx, id)
	if err != nil {
		s.log.Error("failed to delete message", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete message: %w", err)
	}

	if !deleted {
		return apperrors.ErrMessageNotFound
	}

	metrics.MessagesRemoved.Inc()
	s.log.Info("message removed", zap.Int64("id", id))

	return nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
