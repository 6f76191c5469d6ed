package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

// PostgresStore keeps the wall in a networked relational database behind a
// shared pgx pool. Promotion runs in a transaction so the lookup, the
// message insert and the pending delete commit or vanish together.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.db
}

func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	const pendingTable = `
		CREATE TABLE IF NOT EXISTS pending_messages (
			token      TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			author     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	const messagesTable = `
		CREATE TABLE IF NOT EXISTS messages (
			id        BIGSERIAL PRIMARY KEY,
			body      TEXT NOT NULL,
			author    TEXT NOT NULL,
			payer     TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	if _, err := s.db.Exec(ctx, pendingTable); err != nil {
		return fmt.Errorf("failed to create pending_messages table: %w", err)
	}

	if _, err := s.db.Exec(ctx, messagesTable); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	return nil
}

func (s *PostgresStore) InsertPending(ctx context.Context, pending *model.PendingMessage) error {
	const query = `
		INSERT INTO pending_messages (token, body, author, created_at)
		VALUES ($1, $2, $3, $4)
	`

	pending.CreatedAt = normalizeTimestamp(time.Now())

	if _, err := s.db.Exec(ctx, query,
		pending.Token,
		pending.Body,
		pending.Author,
		pending.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert pending message: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetPending(ctx context.Context, token string) (*model.PendingMessage, error) {
	return s.getPending(ctx, s.db, token)
}

func (s *PostgresStore) getPending(ctx context.Context, ext RepoExtension, token string) (*model.PendingMessage, error) {
	const query = `
		SELECT token, body, author, created_at
		FROM pending_messages
		WHERE token = $1
	`

	var pending model.PendingMessage
	err := ext.QueryRow(ctx, query, token).Scan(
		&pending.Token,
		&pending.Body,
		&pending.Author,
		&pending.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}

	pending.CreatedAt = normalizeTimestamp(pending.CreatedAt)

	return &pending, nil
}

func (s *PostgresStore) DeletePending(ctx context.Context, token string) error {
	const query = `DELETE FROM pending_messages WHERE token = $1`

	if _, err := s.db.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}

	return nil
}

func (s *PostgresStore) PromotePending(ctx context.Context, token, payer string) (*model.Message, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin promotion: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serializes concurrent finalize calls on the same token; the
	// loser blocks here and then sees no row.
	const claim = `
		SELECT token, body, author, created_at
		FROM pending_messages
		WHERE token = $1
		FOR UPDATE
	`

	var pending model.PendingMessage
	err = tx.QueryRow(ctx, claim, token).Scan(
		&pending.Token,
		&pending.Body,
		&pending.Author,
		&pending.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to claim pending message: %w", err)
	}

	msg, err := s.insertMessage(ctx, tx, pending.Body, pending.Author, payer)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_messages WHERE token = $1`, token); err != nil {
		return nil, fmt.Errorf("failed to consume pending message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}

	return msg, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, body, author, payer string) (*model.Message, error) {
	return s.insertMessage(ctx, s.db, body, author, payer)
}

func (s *PostgresStore) insertMessage(ctx context.Context, ext RepoExtension, body, author, payer string) (*model.Message, error) {
	const query = `
		INSERT INTO messages (body, author, payer)
		VALUES ($1, $2, $3)
		RETURNING id, timestamp
	`

	msg := model.Message{
		Body:   body,
		Author: author,
		Payer:  payer,
	}

	if err := ext.QueryRow(ctx, query, body, author, payer).Scan(&msg.ID, &msg.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	msg.Timestamp = normalizeTimestamp(msg.Timestamp)

	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	const query = `
		SELECT id, body, author, payer, timestamp
		FROM messages
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.Body, &msg.Author, &msg.Payer, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Timestamp = normalizeTimestamp(msg.Timestamp)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM messages WHERE id = $1`

	result, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM pending_messages WHERE created_at < $1`

	result, err := s.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pending messages: %w", err)
	}

	return result.RowsAffected(), nil
}

// Close is a no-op: the pool is owned by the app and closed on shutdown.
func (s *PostgresStore) Close() error {
	return nil
}
