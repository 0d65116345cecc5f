package polycache

import (
	"sync"

	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const DBName = "polycache"

// Stats counts cache traffic.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Puts   int64 `json:"puts"`
}

// DBCache stores approximations in a tm-db key/value store.
type DBCache struct {
	db    tmdb.DB
	stats Stats

	logger log.Logger
	mtx    sync.RWMutex
}

var _ piecewise.Cache = (*DBCache)(nil)

// OpenDBCache opens a goleveldb store under dir, or an in-memory one for
// the memdb backend.
func OpenDBCache(backend, dir string, lg log.Logger) (*DBCache, xerrors.XError) {
	var db tmdb.DB
	switch tmdb.BackendType(backend) {
	case tmdb.MemDBBackend:
		db = tmdb.NewMemDB()
	case tmdb.GoLevelDBBackend:
		var err error
		if db, err = tmdb.NewDB(DBName, tmdb.GoLevelDBBackend, dir); err != nil {
			return nil, xerrors.ErrCache.Wrap(err)
		}
	default:
		return nil, xerrors.ErrInvalidParams.Wrapf("unknown cache backend %q", backend)
	}
	return NewDBCache(db, lg), nil
}

func NewDBCache(db tmdb.DB, lg log.Logger) *DBCache {
	return &DBCache{db: db, logger: lg.With("module", "polycache")}
}

// Get reports a miss on any read or decode failure.
func (c *DBCache) Get(k piecewise.Key) (*polyapprox.BasicPolyApprox, bool) {
	c.mtx.RLock()
	bz, err := c.db.Get(CacheKey(k))
	c.mtx.RUnlock()

	c.mtx.Lock()
	defer c.mtx.Unlock()
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

// Put stores p unless the key is already present.
func (c *DBCache) Put(k piecewise.Key, p *polyapprox.BasicPolyApprox) error {
	bz, xerr := encode(k, p)
	if xerr != nil {
		return xerr
	}
	key := CacheKey(k)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if ok, err := c.db.Has(key); err != nil {
		return xerrors.ErrCache.Wrap(err)
	} else if ok {
		return nil
	}
	if err := c.db.Set(key, bz); err != nil {
		return xerrors.ErrCache.Wrap(err)
	}
	c.stats.Puts++
	return nil
}

func (c *DBCache) Stats() Stats {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.stats
}

// Fingerprint is nil: a flat store has no content hash.
func (c *DBCache) Fingerprint() ([]byte, xerrors.XError) {
	return nil, nil
}

func (c *DBCache) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.db.Close()
}
