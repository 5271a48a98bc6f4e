package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

func mustDate(t *testing.T, s string) crawler.Date {
	t.Helper()
	d, err := crawler.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestSnapshotStoreUpsertReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSnapshotStore()
	snap := crawler.Snapshot{Date: mustDate(t, "2025-08-25"), Region: "en-us", Items: []crawler.RankedItem{{ExternalID: "A", AbsoluteRank: 1}}}

	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	snap.Items[0].ExternalID = "mutated"

	got, err := store.ListSnapshots(ctx, "en-us", snap.Date)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Items[0].ExternalID)
	require.Equal(t, crawler.SchemaVersion, got[0].SchemaVersion)

	require.Error(t, store.UpsertSnapshot(ctx, crawler.Snapshot{Region: "en-us"}))
}

func TestSnapshotStoreListsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSnapshotStore()
	for _, d := range []string{"2025-08-25", "2025-08-27", "2025-08-26"} {
		require.NoError(t, store.UpsertSnapshot(ctx, crawler.Snapshot{Date: mustDate(t, d), Region: "en-us"}))
	}
	require.NoError(t, store.UpsertSnapshot(ctx, crawler.Snapshot{Date: mustDate(t, "2025-08-28"), Region: "ja-jp"}))

	got, err := store.ListSnapshots(ctx, "en-us", crawler.Date{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"2025-08-27", "2025-08-26", "2025-08-25"},
		[]string{got[0].Date.String(), got[1].Date.String(), got[2].Date.String()})
}

func TestHistoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewHistoryStore()

	_, err := store.GetHistory(ctx, "A", "en-us")
	require.ErrorIs(t, err, tracking.ErrHistoryNotFound)

	h := tracking.GameHistory{ItemID: "A", Region: "en-us", Points: []tracking.HistoryPoint{{Date: mustDate(t, "2025-08-25"), Rank: 1, Change: "new"}}}
	require.NoError(t, store.UpsertHistory(ctx, h))
	require.NoError(t, store.UpsertHistory(ctx, tracking.GameHistory{ItemID: "B", Region: "en-gb"}))

	got, err := store.GetHistory(ctx, "A", "en-us")
	require.NoError(t, err)
	require.Equal(t, h.Points, got.Points)

	all, err := store.ListHistories(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, crawler.Region("en-gb"), all[0].Region)

	us, err := store.ListHistories(ctx, "en-us")
	require.NoError(t, err)
	require.Len(t, us, 1)
}
