package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockDefaultsToUTC(t *testing.T) {
	t.Parallel()

	clk := New(nil)
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestFromName(t *testing.T) {
	t.Parallel()

	clk, err := FromName("")
	require.NoError(t, err)
	require.Equal(t, time.UTC, clk.Location())

	clk, err = FromName("Asia/Hong_Kong")
	require.NoError(t, err)
	require.Equal(t, "Asia/Hong_Kong", clk.Now().Location().String())

	_, err = FromName("Mars/Olympus_Mons")
	require.Error(t, err)
}
