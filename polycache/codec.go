package polycache

import (
	"github.com/beatoz/fxopgen/libs/jsonx"
	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// record is the stored value. The full key is kept to detect hash
// collisions. Mantissas are decimal strings and the bound is exact 'p' text.
type record struct {
	Key  string                      `json:"key"`
	Poly *polyapprox.BasicPolyApprox `json:"poly"`
}

func encode(k piecewise.Key, p *polyapprox.BasicPolyApprox) ([]byte, xerrors.XError) {
	bz, err := jsonx.Marshal(&record{Key: k.String(), Poly: p})
	if err != nil {
		return nil, xerrors.ErrCacheEncode.Wrap(err)
	}
	return bz, nil
}

func decode(k piecewise.Key, bz []byte) (*polyapprox.BasicPolyApprox, xerrors.XError) {
	rec := &record{}
	if err := jsonx.Unmarshal(bz, rec); err != nil {
		return nil, xerrors.ErrCacheDecode.Wrap(err)
	}
	if rec.Key != k.String() {
		return nil, xerrors.ErrKeyCompromised.Wrapf("stored %q, wanted %q", rec.Key, k.String())
	}
	p := rec.Poly
	if p == nil || len(p.Coeffs) != p.Degree+1 || len(p.IsZero) != len(p.Coeffs) || p.ApproxErrorBound == nil {
		return nil, xerrors.ErrCacheDecode.Wrapf("malformed polynomial for %q", rec.Key)
	}
	for _, c := range p.Coeffs {
		if c == nil || c.Mantissa == nil {
			return nil, xerrors.ErrCacheDecode.Wrapf("missing coefficient for %q", rec.Key)
		}
	}
	return p, nil
}
