package xerrors

import (
	"errors"
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
)

func Test_Wrap(t *testing.T) {
	err := errors.New("base error")
	xerr0 := NewOrdinary("first xerror").Wrap(err)
	xerr1 := NewOrdinary("second xerror").Wrap(xerr0)

	//second xerror
	//	first xerror
	//	base error
	fmt.Println(xerr1)

	xerr0 = NewOrdinary("first xerror").Wrapf("initial error: %s", err.Error())
	xerr1 = NewOrdinary("second xerror").Wrap(xerr0)

	//second xerror
	//	first xerror
	//	initial error: base error
	fmt.Println(xerr1)
}

func Test_Contains(t *testing.T) {
	err := errors.New("base error")
	xerr0 := NewOrdinary("first xerror").Wrap(err)
	xerr1 := NewOrdinary("second xerror").Wrap(xerr0)
	xerrNotContained := NewOrdinary("third xerror").Wrap(err)

	require.True(t, xerr1.Contains(xerr0))
	require.False(t, xerr1.Contains(xerrNotContained))
}

func Test_TaxonomyContains(t *testing.T) {
	xerr := ErrApproximationInfeasible.Wrapf("degree %d exceeds %d", 21, 20)
	require.True(t, xerr.Contains(ErrApproximationInfeasible))
	require.False(t, xerr.Contains(ErrErrorBudgetInfeasible))
	require.Equal(t, ErrCodeApproximationInfeasible, xerr.Code())

	require.True(t, ErrNegativeOutput.Contains(ErrNoValidDecomposition))
	require.True(t, ErrDivByZeroInterval.Contains(ErrDomain))
	require.True(t, ErrDivByZeroInterval.Wrapf("at %s", "x").Contains(ErrDomain))
	require.False(t, ErrKeyCompromised.Contains(ErrParse))
}

func Test_WrapKeepsCode(t *testing.T) {
	base := errors.New("leveldb: closed")
	xerr := ErrCache.Wrap(base)
	require.Equal(t, ErrCodeCache, xerr.Code())
	require.ErrorIs(t, xerr.Cause(), base)
	require.Contains(t, xerr.Error(), "leveldb: closed")
	require.True(t, xerr.Equal(ErrCache))
}

func Test_ErrorsIs(t *testing.T) {
	xerr := ErrRange.Wrapf("msb(%d) < lsb(%d)", -3, -2)
	require.ErrorIs(t, xerr, ErrRange)
	require.NotErrorIs(t, xerr, ErrParse)
}
