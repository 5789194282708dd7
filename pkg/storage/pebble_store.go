package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/pkg/app/core"
)

type Options struct {
	Path string

	// InMemory keeps everything in a memory filesystem (tests)
	InMemory bool

	// Sync fsyncs the WAL on every commit
	Sync bool

	Logger *zap.SugaredLogger
}

// PebbleStore implements core.Store on a single Pebble database.
//
// Each unit runs on an indexed batch so it reads its own writes. Orders,
// accounts and price levels are versioned; the first version a unit sees
// is recorded and re-checked against committed state before the batch is
// applied. A mismatch discards the unit with core.ErrConflict.
type PebbleStore struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	logger    *zap.SugaredLogger

	// serializes validate+apply so two units cannot both pass validation
	commitMu sync.Mutex

	orderSeq *Sequencer
	tradeSeq *Sequencer
}

func Open(opts Options) (*PebbleStore, error) {
	pebbleOpts := &pebble.Options{}
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", opts.Path, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &PebbleStore{
		db:        db,
		writeOpts: pebble.NoSync,
		logger:    logger,
	}
	if opts.Sync {
		s.writeOpts = pebble.Sync
	}

	lastOrder, err := s.lastID(prefixOrder)
	if err != nil {
		db.Close()
		return nil, err
	}
	lastTrade, err := s.lastID(prefixTrade)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.orderSeq = NewSequencer(lastOrder)
	s.tradeSeq = NewSequencer(lastTrade)

	logger.Infow("store_opened",
		"path", opts.Path,
		"in_memory", opts.InMemory,
		"sync", opts.Sync,
		"last_order_id", lastOrder,
		"last_trade_id", lastTrade,
	)
	return s, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// lastID recovers the highest ID persisted under prefix
func (s *PebbleStore) lastID(prefix string) (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	return idFromKey(iter.Key())
}

// Update runs fn as one atomic unit. Nothing fn writes is visible to other
// units unless fn returns nil and the commit succeeds.
func (s *PebbleStore) Update(ctx context.Context, fn func(core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.begin()
	defer tx.batch.Close()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// View runs fn against current committed state. Writes are discarded.
func (s *PebbleStore) View(ctx context.Context, fn func(core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.begin()
	defer tx.batch.Close()
	return fn(tx)
}

func (s *PebbleStore) begin() *pebbleTx {
	return &pebbleTx{
		store:    s,
		batch:    s.db.NewIndexedBatch(),
		observed: make(map[string]uint64),
	}
}

func (s *PebbleStore) commit(tx *pebbleTx) error {
	if tx.batch.Empty() {
		return nil
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	for key, seen := range tx.observed {
		current, err := getVersion(s.db, []byte(key))
		if err != nil {
			return core.Persistence("validate", err)
		}
		if current != seen {
			return fmt.Errorf("%w: %s at version %d, unit saw %d", core.ErrConflict, key, current, seen)
		}
	}

	if err := tx.batch.Commit(s.writeOpts); err != nil {
		return core.Persistence("commit", err)
	}
	return nil
}

var _ core.Store = (*PebbleStore)(nil)
