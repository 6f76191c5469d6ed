package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

// Key layout:
//
//	pending:<token>      -> JSON PendingMessage
//	msg:<id, %020d>      -> JSON Message
//	meta:msg_seq         -> big-endian uint64, last assigned id
//
// Padded ids keep lexicographic key order equal to insertion order, so a
// reverse scan over the msg: prefix is the wall, newest first.
const (
	pendingPrefix = "pending:"
	messagePrefix = "msg:"
	seqKey        = "meta:msg_seq"
)

// PebbleStore is the embedded backend: one on-disk store, no external
// services. A single mutex serializes promotions and id assignment, which
// stands in for the transaction the relational backend gets for free.
type PebbleStore struct {
	log *zap.Logger

	mu  sync.Mutex
	db  *pebble.DB
	seq uint64
}

func NewPebbleStore(log *zap.Logger, path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}

	s := &PebbleStore{
		log: log,
		db:  db,
	}

	if err := s.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// loadSeq restores the persisted id counter so ids stay monotonic across
// restarts even when the newest messages were deleted.
func (s *PebbleStore) loadSeq() error {
	raw, closer, err := s.db.Get([]byte(seqKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load message sequence: %w", err)
	}
	defer closer.Close()

	if len(raw) == 8 {
		s.seq = binary.BigEndian.Uint64(raw)
	}

	return nil
}

func (s *PebbleStore) CreateSchema(ctx context.Context) error {
	// Pebble is schemaless; opening the store is all the setup there is.
	return nil
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, id))
}

func pendingKey(token string) []byte {
	return []byte(pendingPrefix + token)
}

func (s *PebbleStore) InsertPending(ctx context.Context, pending *model.PendingMessage) error {
	pending.CreatedAt = normalizeTimestamp(time.Now())

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending message: %w", err)
	}

	if err := s.db.Set(pendingKey(pending.Token), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to insert pending message: %w", err)
	}

	return nil
}

func (s *PebbleStore) GetPending(ctx context.Context, token string) (*model.PendingMessage, error) {
	raw, closer, err := s.db.Get(pendingKey(token))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, apperrors.ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}
	defer closer.Close()

	var pending model.PendingMessage
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending message: %w", err)
	}

	return &pending, nil
}

func (s *PebbleStore) DeletePending(ctx context.Context, token string) error {
	if err := s.db.Delete(pendingKey(token), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}

	return nil
}

func (s *PebbleStore) PromotePending(ctx context.Context, token, payer string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.GetPending(ctx, token)
	if err != nil {
		return nil, err
	}

	msg, err := s.insertMessageLocked(pending.Body, pending.Author, payer)
	if err != nil {
		return nil, err
	}

	// The message is durable at this point. A failed cleanup leaves an
	// orphaned pending record, which is safe: the token namespace is never
	// reused, so it cannot mint a second message later on this run, and a
	// GetPending hit on it only replays an idempotent-looking redirect.
	if err := s.db.Delete(pendingKey(token), pebble.Sync); err != nil {
		s.log.Error("failed to consume pending message after commit",
			zap.String("token", token),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}

	return msg, nil
}

func (s *PebbleStore) InsertMessage(ctx context.Context, body, author, payer string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertMessageLocked(body, author, payer)
}

func (s *PebbleStore) insertMessageLocked(body, author, payer string) (*model.Message, error) {
	id := s.seq + 1

	msg := model.Message{
		ID:        int64(id),
		Body:      body,
		Author:    author,
		Payer:     payer,
		Timestamp: normalizeTimestamp(time.Now()),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], id)

	if err := batch.Set(messageKey(msg.ID), data, nil); err != nil {
		return nil, fmt.Errorf("failed to stage message: %w", err)
	}
	if err := batch.Set([]byte(seqKey), seqBuf[:], nil); err != nil {
		return nil, fmt.Errorf("failed to stage message sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	s.seq = id

	return &msg, nil
}

func (s *PebbleStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(messagePrefix),
		UpperBound: []byte(messagePrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open message iterator: %w", err)
	}
	defer iter.Close()

	var messages []model.Message
	for valid := iter.Last(); valid; valid = iter.Prev() {
		var msg model.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message %s: %w", iter.Key(), err)
		}
		messages = append(messages, msg)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (s *PebbleStore) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey(id)

	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up message: %w", err)
	}
	closer.Close()

	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}

	return true, nil
}

func (s *PebbleStore) DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pendingPrefix),
		UpperBound: []byte(pendingPrefix + "\xff"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open pending iterator: %w", err)
	}
	defer iter.Close()

	var expired [][]byte
	for valid := iter.First(); valid; valid = iter.Next() {
		var pending model.PendingMessage
		if err := json.Unmarshal(iter.Value(), &pending); err != nil {
			s.log.Warn("skipping unreadable pending record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}

		if pending.CreatedAt.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			expired = append(expired, key)
		}
	}

	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("error iterating pending messages: %w", err)
	}

	var deleted int64
	for _, key := range expired {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return deleted, fmt.Errorf("failed to delete expired pending message: %w", err)
		}
		deleted++
	}

	return deleted, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
