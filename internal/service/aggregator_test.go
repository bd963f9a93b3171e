package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/reliefops/notify-agent/internal/domain/model"
	"github.com/reliefops/notify-agent/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu sync.Mutex

	unified    []model.NotificationItem
	unifiedErr error
	block      chan struct{} // non-nil: ListNotifications waits until closed

	incidents    []model.NotificationItem
	incidentsErr error
	welfare      []model.NotificationItem
	welfareErr   error

	markReadIDs  []string
	markReadErr  error
	markAllCalls int
}

func (f *fakeAPI) ListNotifications(ctx context.Context, limit int) ([]model.NotificationItem, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unifiedErr != nil {
		return nil, f.unifiedErr
	}
	out := append([]model.NotificationItem(nil), f.unified...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAPI) ListRecentIncidents(ctx context.Context) ([]model.NotificationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incidentsErr != nil {
		return nil, f.incidentsErr
	}
	return append([]model.NotificationItem(nil), f.incidents...), nil
}

func (f *fakeAPI) ListWelfareNeedingHelp(ctx context.Context) ([]model.NotificationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.welfareErr != nil {
		return nil, f.welfareErr
	}
	return append([]model.NotificationItem(nil), f.welfare...), nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadIDs = append(f.markReadIDs, id)
	return f.markReadErr
}

func (f *fakeAPI) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++
	return nil
}

func (f *fakeAPI) syncedReadIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markReadIDs...)
}

func newTestAggregator(t *testing.T, api *fakeAPI) *Aggregator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	read := store.Load(filepath.Join(t.TempDir(), "read.json"), logger)
	rack := NewToastRack(time.Minute)
	t.Cleanup(rack.Stop)
	return NewAggregator(api, read, rack, NoopNotifier{}, nil, logger)
}

func incident(id string, at int64) model.NotificationItem {
	return model.NotificationItem{
		ID:         id,
		Kind:       model.KindIncident,
		Title:      "Fire",
		Message:    "msg " + id,
		Priority:   model.PriorityMedium,
		OccurredAt: at,
	}
}

func welfareItem(related int64, at int64) model.NotificationItem {
	return model.NotificationItem{
		ID:         model.WelfareID(related),
		Kind:       model.KindWelfare,
		Title:      "Welfare check requested",
		Message:    "needs help",
		Priority:   model.PriorityHigh,
		OccurredAt: at,
		UserName:   "Dana",
		Status:     "needs_help",
	}
}

func TestHandleNewDeduplicates(t *testing.T) {
	agg := newTestAggregator(t, &fakeAPI{})

	agg.HandleNew(incident("42", 100))
	agg.HandleNew(incident("42", 100))

	require.Len(t, agg.Merged(), 1)
	require.Len(t, agg.Toasts(), 1, "duplicate delivery must not raise a second toast")
}

func TestSeenCacheSuppressesEvictedDuplicates(t *testing.T) {
	agg := newTestAggregator(t, &fakeAPI{})

	for i := 0; i < incidentCap+1; i++ {
		agg.HandleNew(incident(string(rune('a'+i)), int64(i)))
	}
	// "a" is no longer displayed but was processed once.
	merged := agg.Merged()
	for _, it := range merged {
		require.NotEqual(t, "a", it.ID)
	}

	before := len(agg.Toasts())
	agg.HandleNew(incident("a", 0))
	require.Len(t, agg.Merged(), incidentCap)
	require.Len(t, agg.Toasts(), before, "re-delivery of an evicted item must stay silent")
}

func TestCapsNewestFirst(t *testing.T) {
	agg := newTestAggregator(t, &fakeAPI{})

	for i := 1; i <= 12; i++ {
		agg.HandleNew(incident(strconv.Itoa(i), int64(i)))
	}
	for i := 1; i <= 6; i++ {
		agg.HandleNew(welfareItem(int64(i), int64(100+i)))
	}

	merged := agg.Merged()
	require.Len(t, merged, incidentCap+welfareCap)

	// Welfare arrived last with higher timestamps: it leads the merged view.
	require.Equal(t, model.WelfareID(6), merged[0].ID)

	// Oldest two incidents and oldest welfare report were evicted.
	ids := make(map[string]bool)
	for _, it := range merged {
		ids[it.ID] = true
	}
	require.False(t, ids["1"])
	require.False(t, ids["2"])
	require.True(t, ids["3"])
	require.False(t, ids[model.WelfareID(1)])
}

func TestHandleUpdateMergesInPlace(t *testing.T) {
	agg := newTestAggregator(t, &fakeAPI{})

	agg.HandleNew(incident("7", 100))
	agg.HandleNew(incident("8", 200))

	agg.HandleUpdate(model.NotificationItem{
		ID:       "7",
		Kind:     model.KindIncident,
		Message:  "situation escalated",
		Priority: model.PriorityCritical,
	})

	merged := agg.Merged()
	require.Len(t, merged, 2)
	require.Equal(t, "8", merged[0].ID, "update must not reorder")
	require.Equal(t, "situation escalated", merged[1].Message)
	require.Equal(t, model.PriorityCritical, merged[1].Priority)
	require.Equal(t, "Fire", merged[1].Title, "absent fields keep their value")

	// Updates for unknown ids and toast-free by design.
	agg.HandleUpdate(incident("nope", 1))
	require.Len(t, agg.Merged(), 2)
	require.Len(t, agg.Toasts(), 2, "updates never raise toasts")
}

func TestRefreshReplacesWorkingSet(t *testing.T) {
	api := &fakeAPI{unified: []model.NotificationItem{
		incident("10", 300),
		welfareItem(4, 250),
		incident("11", 200),
	}}
	agg := newTestAggregator(t, api)
	agg.HandleNew(incident("stale", 50))

	require.NoError(t, agg.Refresh(context.Background()))

	merged := agg.Merged()
	require.Len(t, merged, 3)
	require.Equal(t, "10", merged[0].ID)
	require.Equal(t, model.WelfareID(4), merged[1].ID)
	require.Equal(t, "11", merged[2].ID)
}

func TestRefreshPushWinsDuringSnapshot(t *testing.T) {
	block := make(chan struct{})
	api := &fakeAPI{
		unified: []model.NotificationItem{incident("old", 100)},
		block:   block,
	}
	agg := newTestAggregator(t, api)

	done := make(chan error, 1)
	go func() { done <- agg.Refresh(context.Background()) }()

	// Wait for the refresh to be in flight, then race a push against it. The
	// snapshot does not contain "live"; it must still survive the replace.
	require.Eventually(t, func() bool {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		return agg.refreshing
	}, time.Second, time.Millisecond)

	agg.HandleNew(incident("live", 500))
	agg.HandleUpdate(model.NotificationItem{ID: "live", Kind: model.KindIncident, Message: "updated mid-flight"})

	close(block)
	require.NoError(t, <-done)

	merged := agg.Merged()
	require.Len(t, merged, 2)
	require.Equal(t, "live", merged[0].ID)
	require.Equal(t, "updated mid-flight", merged[0].Message)
	require.Equal(t, "old", merged[1].ID)
}

func TestRefreshLegacyFallbackPartialFailure(t *testing.T) {
	api := &fakeAPI{
		unifiedErr:   errors.New("unified down"),
		incidentsErr: errors.New("incidents down"),
		welfare:      []model.NotificationItem{welfareItem(9, 400)},
	}
	agg := newTestAggregator(t, api)

	require.NoError(t, agg.Refresh(context.Background()),
		"one healthy legacy endpoint is enough")

	merged := agg.Merged()
	require.Len(t, merged, 1)
	require.Equal(t, model.WelfareID(9), merged[0].ID)
}

func TestRefreshTotalFailureKeepsOldSet(t *testing.T) {
	api := &fakeAPI{unified: []model.NotificationItem{incident("keep", 100)}}
	agg := newTestAggregator(t, api)
	require.NoError(t, agg.Refresh(context.Background()))

	api.mu.Lock()
	api.unifiedErr = errors.New("unified down")
	api.incidentsErr = errors.New("incidents down")
	api.welfareErr = errors.New("welfare down")
	api.mu.Unlock()

	err := agg.Refresh(context.Background())
	require.Error(t, err)

	merged := agg.Merged()
	require.Len(t, merged, 1)
	require.Equal(t, "keep", merged[0].ID)
}

func TestRefreshPrunesReadState(t *testing.T) {
	api := &fakeAPI{unified: []model.NotificationItem{incident("kept", 100)}}
	agg := newTestAggregator(t, api)

	agg.HandleNew(incident("kept", 100))
	agg.HandleNew(incident("gone", 90))
	agg.MarkRead("kept")
	agg.MarkRead("gone")

	require.NoError(t, agg.Refresh(context.Background()))

	require.True(t, agg.IsRead("kept"))
	require.False(t, agg.IsRead("gone"), "read marks for evicted items must not accumulate")
}

func TestUnreadAndPriorityCounts(t *testing.T) {
	agg := newTestAggregator(t, &fakeAPI{})

	low := incident("1", 100)
	low.Priority = model.PriorityLow
	crit := incident("2", 200)
	crit.Priority = model.PriorityCritical

	agg.HandleNew(low)
	agg.HandleNew(crit)
	agg.HandleNew(welfareItem(3, 300)) // welfare always counts as high attention

	require.Equal(t, 3, agg.UnreadCount())
	require.Equal(t, 2, agg.PriorityCount())

	agg.MarkRead("2")
	require.Equal(t, 2, agg.UnreadCount())
	require.Equal(t, 2, agg.PriorityCount(), "read state does not affect the attention count")

	agg.MarkAllRead()
	require.Equal(t, 0, agg.UnreadCount())
}

func TestMarkReadOptimisticDespiteSyncFailure(t *testing.T) {
	api := &fakeAPI{markReadErr: errors.New("server rejected")}
	agg := newTestAggregator(t, api)
	agg.HandleNew(incident("13", 100))

	agg.MarkRead("13")
	require.True(t, agg.IsRead("13"), "local read state is the display truth")

	require.Eventually(t, func() bool {
		return len(api.syncedReadIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, agg.IsRead("13"), "sync failure must not roll local state back")
}
