package polycache

import (
	"sync"

	"github.com/cosmos/iavl"
	dbm "github.com/cosmos/iavl/db"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const treeCacheSize = 10000

// TreeCache stores approximations in a versioned iavl tree. Commit saves a
// version and returns the root hash, which fingerprints the cache content.
type TreeCache struct {
	db    dbm.DB
	tree  *iavl.MutableTree
	stats Stats

	logger log.Logger
	mtx    sync.RWMutex
}

var _ piecewise.Cache = (*TreeCache)(nil)

func OpenTreeCache(dir string, lg log.Logger) (*TreeCache, xerrors.XError) {
	db, err := dbm.NewGoLevelDB(DBName, dir)
	if err != nil {
		return nil, xerrors.ErrCache.Wrap(err)
	}
	return newTreeCache(db, lg)
}

func NewMemTreeCache(lg log.Logger) (*TreeCache, xerrors.XError) {
	return newTreeCache(dbm.NewMemDB(), lg)
}

func newTreeCache(db dbm.DB, lg log.Logger) (*TreeCache, xerrors.XError) {
	tree := iavl.NewMutableTree(db, treeCacheSize, false, iavl.NewNopLogger(), iavl.SyncOption(true))
	if _, err := tree.LoadVersion(0); err != nil {
		_ = tree.Close()
		return nil, xerrors.ErrCache.Wrap(err)
	}
	return &TreeCache{
		db:     db,
		tree:   tree,
		logger: lg.With("module", "polycache"),
	}, nil
}

func (c *TreeCache) Get(k piecewise.Key) (*polyapprox.BasicPolyApprox, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	bz, err := c.tree.Get(CacheKey(k))
	if err != nil {
		c.logger.Error("cache read failed", "key", k.String(), "err", err)
		c.stats.Misses++
		return nil, false
	}
	if bz == nil {
		c.stats.Misses++
		return nil, false
	}
	p, xerr := decode(k, bz)
	if xerr != nil {
		c.logger.Error("cache entry dropped", "key", k.String(), "err", xerr)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return p, true
}

func (c *TreeCache) Put(k piecewise.Key, p *polyapprox.BasicPolyApprox) error {
	bz, xerr := encode(k, p)
	if xerr != nil {
		return xerr
	}
	key := CacheKey(k)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if ok, err := c.tree.Has(key); err != nil {
		return xerrors.ErrCache.Wrap(err)
	} else if ok {
		return nil
	}
	if _, err := c.tree.Set(key, bz); err != nil {
		return xerrors.ErrCache.Wrap(err)
	}
	c.stats.Puts++
	return nil
}

// Commit saves the pending entries as a new version.
func (c *TreeCache) Commit() ([]byte, int64, xerrors.XError) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	hash, ver, err := c.tree.SaveVersion()
	if err != nil {
		return nil, 0, xerrors.ErrCache.Wrap(err)
	}
	c.logger.Debug("cache committed", "version", ver, "hash", hash)
	return hash, ver, nil
}

func (c *TreeCache) Version() int64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tree.Version()
}

func (c *TreeCache) Stats() Stats {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.stats
}

// Fingerprint commits and returns the root hash.
func (c *TreeCache) Fingerprint() ([]byte, xerrors.XError) {
	hash, _, xerr := c.Commit()
	return hash, xerr
}

func (c *TreeCache) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.tree != nil {
		if err := c.tree.Close(); err != nil {
			return err
		}
		c.tree = nil
	}
	return c.db.Close()
}
