package polycache

import (
	"os"
	"path/filepath"

	"github.com/containerd/continuity/fs"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	BackendGoLevelDB = "goleveldb"
	BackendMemDB     = "memdb"
	BackendIAVL      = "iavl"
	BackendNone      = "none"
)

// Store is a closable cache backend.
type Store interface {
	piecewise.Cache
	Stats() Stats
	// Fingerprint identifies the stored content, nil when unsupported.
	Fingerprint() ([]byte, xerrors.XError)
	Close() error
}

type nopStore struct{}

func (nopStore) Get(k piecewise.Key) (*polyapprox.BasicPolyApprox, bool) {
	return piecewise.NopCache.Get(k)
}
func (nopStore) Put(k piecewise.Key, p *polyapprox.BasicPolyApprox) error {
	return piecewise.NopCache.Put(k, p)
}
func (nopStore) Stats() Stats { return Stats{} }
func (nopStore) Fingerprint() ([]byte, xerrors.XError) { return nil, nil }
func (nopStore) Close() error { return nil }

// Open opens the cache backend under dir.
func Open(backend, dir string, lg log.Logger) (Store, xerrors.XError) {
	switch backend {
	case BackendNone, "":
		return nopStore{}, nil
	case BackendMemDB, BackendGoLevelDB, BackendIAVL:
	default:
		return nil, xerrors.ErrInvalidParams.Wrapf("unknown cache backend %q", backend)
	}
	if backend != BackendMemDB {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, xerrors.ErrCache.Wrap(err)
		}
	}
	if backend != BackendIAVL {
		c, xerr := OpenDBCache(backend, dir, lg)
		if xerr != nil {
			return nil, xerr
		}
		return c, nil
	}
	c, xerr := OpenTreeCache(dir, lg)
	if xerr != nil {
		return nil, xerr
	}
	return c, nil
}

// Export copies a closed on-disk cache directory to dst.
func Export(src, dst string) xerrors.XError {
	if _, err := os.Stat(filepath.Join(src, DBName+".db")); err != nil {
		return xerrors.ErrNotFoundResult.Wrapf("no cache in %s: %v", src, err)
	}
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return xerrors.ErrCache.Wrap(err)
	}
	if err := fs.CopyDir(dst, src); err != nil {
		return xerrors.ErrCache.Wrap(err)
	}
	return nil
}
