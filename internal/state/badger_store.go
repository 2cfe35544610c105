package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

var stateKey = []byte("hlfb:state")

// BadgerStore persists state in an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerStore opens (or creates) a Badger database in dir.
func NewBadgerStore(dir string, logger zerolog.Logger) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(filepath.Clean(dir)), logger)
}

func openBadger(opts badger.Options, logger zerolog.Logger) (*BadgerStore, error) {
	opts.Logger = badgerLogger{logger: logger.With().Str("component", "badger").Logger()}
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Load implements Store. A missing key or an unsupported version yields an
// empty state.
func (s *BadgerStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	var loaded State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &loaded)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.logger.Warn().Msg("no stored state, starting fresh")
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	if loaded.Version != Version {
		s.logger.Warn().Int("version", loaded.Version).Msg("stored state version unsupported, starting fresh")
		return State{}, nil
	}
	return loaded, nil
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.Version = Version
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, data)
	})
}

type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
