package piecewise

import (
	"fmt"

	"github.com/beatoz/fxopgen/polyapprox"
)

// Key identifies one approximated interval.
type Key struct {
	Function string `json:"function"`
	LSBIn    int    `json:"lsbIn"`
	LSBOut   int    `json:"lsbOut"`
	Degree   int    `json:"degree"`
	Alpha    int    `json:"alpha"`
	Interval int64  `json:"interval"`
	// LSBs are the shared column LSBs, empty before sharing.
	LSBs []int `json:"lsbs,omitempty"`
}

func (k Key) String() string {
	s := fmt.Sprintf("%s|%d|%d|%d|%d|%d", k.Function, k.LSBIn, k.LSBOut, k.Degree, k.Alpha, k.Interval)
	if len(k.LSBs) > 0 {
		s += fmt.Sprintf("|%v", k.LSBs)
	}
	return s
}

// Cache stores approximations across runs. Implementations must be safe
// for concurrent use. Get reports a miss on any read failure.
type Cache interface {
	Get(Key) (*polyapprox.BasicPolyApprox, bool)
	Put(Key, *polyapprox.BasicPolyApprox) error
}

type nopCache struct{}

func (nopCache) Get(Key) (*polyapprox.BasicPolyApprox, bool) { return nil, false }
func (nopCache) Put(Key, *polyapprox.BasicPolyApprox) error { return nil }

// NopCache never stores anything.
var NopCache Cache = nopCache{}
