package statestore

import (
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// cometBackend wraps a cometbft-db DB (the teacher's own embedded KV engine,
// see pkg/kvdb/adapter.go) with a batch that accumulates writes between
// Commit() calls, so intermediate writes never become visible to readers —
// the property spec §4.5.1 requires between finalization steps 1 and 7.
type cometBackend struct {
	db dbm.DB

	mu      sync.Mutex
	pending dbm.Batch
}

// NewGoLevelDBStore opens (or creates) a GoLevelDB-backed Store at dir/name.
func NewGoLevelDBStore(name, dir string) (Store, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, err
	}
	return newBaseStore(&cometBackend{db: db}), nil
}

func (c *cometBackend) batch() dbm.Batch {
	if c.pending == nil {
		c.pending = c.db.NewBatch()
	}
	return c.pending
}

func (c *cometBackend) get(key []byte) ([]byte, error) {
	return c.db.Get(key)
}

func (c *cometBackend) set(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch().Set(key, value)
}

func (c *cometBackend) delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch().Delete(key)
}

func (c *cometBackend) iterate() ([][2][]byte, error) {
	it, err := c.db.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out [][2][]byte
	for ; it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		out = append(out, [2][]byte{k, v})
	}
	return out, it.Error()
}

func (c *cometBackend) commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	err := c.pending.WriteSync()
	c.pending.Close()
	c.pending = nil
	return err
}

func (c *cometBackend) close() error {
	return c.db.Close()
}
