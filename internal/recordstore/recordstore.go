// Package recordstore persists attempt records in BadgerDB, msgpack
// encoded, keyed by session and attempt.
package recordstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cwbudde/algo-restyle/session"
)

var ErrNotFound = errors.New("recordstore: not found")

const prefix = "attempt/"

// Options configures the store. Dir is required unless InMemory is set.
type Options struct {
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Store is a session.RecordSink backed by BadgerDB.
type Store struct {
	db *badger.DB
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("recordstore: dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogLogger{logger.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("recordstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func key(sessionID string, attempt int) []byte {
	return fmt.Appendf(nil, "%s%s/%06d", prefix, sessionID, attempt)
}

// Append stores rec, replacing any record with the same session and
// attempt.
func (s *Store) Append(_ context.Context, rec session.AttemptRecord) error {
	if rec.SessionID == "" {
		return errors.New("recordstore: record has no session id")
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("recordstore: encode: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.SessionID, rec.Attempt), data)
	})
}

// Get returns one record.
func (s *Store) Get(_ context.Context, sessionID string, attempt int) (session.AttemptRecord, error) {
	var rec session.AttemptRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID, attempt))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, ErrNotFound
	}
	return rec, err
}

// List returns the records of a session in attempt order.
func (s *Store) List(_ context.Context, sessionID string) ([]session.AttemptRecord, error) {
	p := []byte(prefix + sessionID + "/")
	var out []session.AttemptRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var rec session.AttemptRecord
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("recordstore: decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Sessions returns the ids of all sessions with records, sorted.
func (s *Store) Sessions(_ context.Context) ([]string, error) {
	p := []byte(prefix)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), p)
			i := bytes.LastIndexByte(rest, '/')
			if i < 0 {
				continue
			}
			id := string(rest[:i])
			if len(ids) == 0 || ids[len(ids)-1] != id {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

func (s *Store) Close() error { return s.db.Close() }

// slogLogger routes badger output to slog, dropping debug and info.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Errorf(f string, v ...any)   { s.l.Error(fmt.Sprintf(f, v...)) }
func (s slogLogger) Warningf(f string, v ...any) { s.l.Warn(fmt.Sprintf(f, v...)) }
func (slogLogger) Infof(string, ...any)          {}
func (slogLogger) Debugf(string, ...any)         {}
