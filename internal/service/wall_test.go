package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

// fakeStore mimics both real backends: token-keyed pending records, a
// monotonic message sequence, and promotion serialized under one lock.
type fakeStore struct {
	mu       sync.Mutex
	pending  map[string]model.PendingMessage
	messages []model.Message
	seq      int64

	failInsertPending bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{pending: make(map[string]model.PendingMessage)}
}

func (f *fakeStore) InsertPending(_ context.Context, p *model.PendingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failInsertPending {
		return errors.New("backend unreachable")
	}

	p.CreatedAt = time.Now().UTC()
	f.pending[p.Token] = *p
	return nil
}

func (f *fakeStore) GetPending(_ context.Context, token string) (*model.PendingMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[token]
	if !ok {
		return nil, apperrors.ErrPendingNotFound
	}
	return &p, nil
}

func (f *fakeStore) PromotePending(_ context.Context, token, payer string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[token]
	if !ok {
		return nil, apperrors.ErrPendingNotFound
	}

	f.seq++
	msg := model.Message{
		ID:        f.seq,
		Body:      p.Body,
		Author:    p.Author,
		Payer:     payer,
		Timestamp: time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	delete(f.pending, token)

	return &msg, nil
}

func (f *fakeStore) ListMessages(_ context.Context) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Message, 0, len(f.messages))
	for i := len(f.messages) - 1; i >= 0; i-- {
		out = append(out, f.messages[i])
	}
	return out, nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, m := range f.messages {
		if m.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteExpiredPending(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	for token, p := range f.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(f.pending, token)
			deleted++
		}
	}
	return deleted, nil
}

func newTestService(store WallRepository, adminSecret string) *WallService {
	return NewWallService(zap.NewNop(), store, Limits{
		MaxBodyLen:    1024,
		MaxAuthorLen:  100,
		DefaultAuthor: "anon",
	}, adminSecret)
}

func TestSubmitThenFinalize(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, "secret")

	body := gofakeit.Sentence(8)
	author := gofakeit.Username()

	token, err := svc.Submit(ctx, body, author)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars of token, got %d", len(token))
	}

	msg, err := svc.Finalize(ctx, token, "0xPayer")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if msg.Payer != "0xPayer" {
		t.Fatalf("expected payer stamped onto message, got %q", msg.Payer)
	}
	if msg.Author != author {
		t.Fatalf("expected author %q, got %q", author, msg.Author)
	}

	// The token is consumed: a replay behaves exactly like an unknown token.
	if _, err := svc.Finalize(ctx, token, "0xPayer"); !errors.Is(err, apperrors.ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound on replay, got %v", err)
	}

	messages, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(messages))
	}
}

func TestSubmitValidationFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), "secret")

	if _, err := svc.Submit(ctx, "   ", gofakeit.Username()); !errors.Is(err, apperrors.ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestSubmitStorageFailureIssuesNoToken(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failInsertPending = true
	svc := newTestService(store, "secret")

	token, err := svc.Submit(ctx, "hello", "")
	if err == nil {
		t.Fatal("expected storage error")
	}
	if token != "" {
		t.Fatalf("token issued despite storage failure: %q", token)
	}
}

func TestSubmitDefaultsAuthor(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, "secret")

	token, err := svc.Submit(ctx, "hello wall", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	msg, err := svc.Finalize(ctx, token, "0xPayer")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if msg.Author != "anon" {
		t.Fatalf("expected default author, got %q", msg.Author)
	}
}

func TestFinalizeRequiresPayer(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), "secret")

	token, err := svc.Submit(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Finalize(ctx, token, ""); !errors.Is(err, apperrors.ErrNoPayer) {
		t.Fatalf("expected ErrNoPayer, got %v", err)
	}

	// The pending record is untouched; payment can still complete later.
	exists, err := svc.PendingExists(ctx, token)
	if err != nil {
		t.Fatalf("PendingExists: %v", err)
	}
	if !exists {
		t.Fatal("pending record consumed by a refused finalize")
	}
}

func TestConcurrentFinalizeCommitsOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, "secret")

	token, err := svc.Submit(ctx, "race me", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Finalize(ctx, token, "0xPayer"); err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if committed != 1 {
		t.Fatalf("expected exactly one successful finalize, got %d", committed)
	}

	messages, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected exactly one message after %d racing finalizes, got %d", attempts, len(messages))
	}
}

func TestRemoveAuthorization(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, "correct-secret")

	token, err := svc.Submit(ctx, "delete me", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	msg, err := svc.Finalize(ctx, token, "0xPayer")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Wrong credential never deletes, even for an existing id, and the
	// verdict does not depend on whether the id exists.
	if err := svc.Remove(ctx, msg.ID, "wrong"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.Remove(ctx, 99999, "wrong"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing id too, got %v", err)
	}

	if messages, _ := svc.List(ctx); len(messages) != 1 {
		t.Fatal("message deleted despite bad credential")
	}

	if err := svc.Remove(ctx, 99999, "correct-secret"); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}

	if err := svc.Remove(ctx, msg.ID, "correct-secret"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if messages, _ := svc.List(ctx); len(messages) != 0 {
		t.Fatal("message survived an authorized delete")
	}
}

func TestRemoveWithEmptyConfiguredSecret(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), "")

	// An unset admin secret locks the admin surface instead of opening it.
	if err := svc.Remove(ctx, 1, ""); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized with empty configured secret, got %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), "secret")

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := svc.Submit(ctx, gofakeit.Sentence(4), "")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if seen[token] {
			t.Fatalf("token %q issued twice", token)
		}
		seen[token] = true
		if strings.TrimSpace(token) != token {
			t.Fatalf("token has surrounding whitespace: %q", token)
		}
	}
}
