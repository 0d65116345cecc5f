package fxnum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Ratio(t *testing.T) {
	require.Equal(t, "0.25", Ratio(1, 4).Format(2))
	require.Equal(t, "0.333", Ratio(1, 3).Format(3))
	require.Equal(t, "0.00", Ratio(1, 0).Format(2))
}

func Test_Percent(t *testing.T) {
	require.Equal(t, "66.7", Percent(16, 24).Format(1))
	require.Equal(t, "33.3", Saving(24, 16).Format(1))
	require.Equal(t, "0.0", Saving(24, 24).Format(1))

	d, err := Percent(1, 8).Decimal()
	require.NoError(t, err)
	require.Equal(t, "12.5", d.String())
}
