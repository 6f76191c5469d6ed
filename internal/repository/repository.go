package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"paidwall/internal/model"
)

// Store is the single persistence contract for the wall. Two backends
// implement it, Postgres over a shared pool and Pebble as an embedded store,
// and they must be indistinguishable to callers: unknown tokens are
// apperrors.ErrPendingNotFound everywhere, DeleteMessage reports whether a
// row actually went away, and timestamps come back normalized to UTC.
type Store interface {
	// CreateSchema makes the backend ready to serve; it is idempotent and
	// runs once at startup before any request is handled.
	CreateSchema(ctx context.Context) error

	InsertPending(ctx context.Context, pending *model.PendingMessage) error
	GetPending(ctx context.Context, token string) (*model.PendingMessage, error)
	DeletePending(ctx context.Context, token string) error

	// PromotePending atomically consumes the pending record behind token and
	// commits it as a Message stamped with payer. The message insert is
	// ordered before the pending delete, and concurrent calls on the same
	// token yield exactly one Message; the loser gets ErrPendingNotFound.
	PromotePending(ctx context.Context, token, payer string) (*model.Message, error)

	InsertMessage(ctx context.Context, body, author, payer string) (*model.Message, error)
	ListMessages(ctx context.Context) ([]model.Message, error)
	DeleteMessage(ctx context.Context, id int64) (bool, error)

	// DeleteExpiredPending removes pending records created before the cutoff
	// and reports how many went away. Used by the retention sweep.
	DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// RepoExtension abstracts a pgx pool or transaction so queries run the same
// inside and outside an explicit transaction.
type RepoExtension interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// normalizeTimestamp clamps a backend-native time to the canonical form:
// UTC, second precision.
func normalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
