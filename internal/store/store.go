// Package store is the persistent conversation store: it records every user
// and assistant message with per-interaction token accounting, rebuilds
// bounded context windows, and serves search, statistics, retention and
// export over one shared database file.
package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBusyTimeout = 5 * time.Second

type Store struct {
	db *gorm.DB

	// writeSlot serializes mutations: the engine only gives us file-level
	// write exclusivity, so at most one write transaction is in flight.
	writeSlot   chan struct{}
	busyTimeout time.Duration

	log *zap.Logger
}

type Option func(*Store)

// WithBusyTimeout bounds how long a mutation waits for the write slot
// before failing with ErrStoreBusy.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		writeSlot:   make(chan struct{}, 1),
		busyTimeout: defaultBusyTimeout,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) acquireWrite(ctx context.Context) (func(), error) {
	select {
	case s.writeSlot <- struct{}{}:
		return func() { <-s.writeSlot }, nil
	default:
	}

	t := time.NewTimer(s.busyTimeout)
	defer t.Stop()
	select {
	case s.writeSlot <- struct{}{}:
		return func() { <-s.writeSlot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, ErrStoreBusy
	}
}

// withWrite runs fn inside the write slot and a single transaction, so a
// mutation either fully commits or leaves the store unchanged.
func (s *Store) withWrite(ctx context.Context, fn func(tx *gorm.DB) error) error {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.db.WithContext(ctx).Transaction(fn)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
