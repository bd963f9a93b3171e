// Package service contains the notification aggregator: the de-duplicated,
// freshness-ranked, read/unread-aware feed built from push events and
// periodic REST snapshots.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/reliefops/notify-agent/internal/adapter/rest"
	"github.com/reliefops/notify-agent/internal/domain/model"
	"github.com/reliefops/notify-agent/internal/store"
	"github.com/reliefops/notify-agent/internal/transport/push"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// Retained window per kind. The merged view is unbounded until
	// display-side truncation.
	incidentCap = 10
	welfareCap  = 5

	// snapshotLimit bounds one unified-endpoint page.
	snapshotLimit = 50

	// seenCacheSize bounds the recently-processed push id cache that
	// suppresses duplicate delivery of already-evicted items.
	seenCacheSize = 256

	readSyncTimeout = 10 * time.Second
)

// FeedAnnouncer publishes working-set changes to the in-process bus.
type FeedAnnouncer interface {
	AnnounceFeedUpdated()
}

type journalEntry struct {
	item   model.NotificationItem
	update bool
}

// Aggregator maintains the working set. A REST refresh replaces the set
// wholesale; push handlers append or update in place. The refresh-vs-push
// race resolves in favor of push: mutations arriving while a snapshot is in
// flight are journaled and replayed on top of it (see DESIGN.md).
type Aggregator struct {
	api      rest.API
	read     *store.ReadState
	toasts   *ToastRack
	notifier Notifier
	bus      FeedAnnouncer
	logger   *slog.Logger

	mu         sync.Mutex
	incidents  []model.NotificationItem
	welfare    []model.NotificationItem
	refreshing bool
	journal    []journalEntry

	seen *lru.Cache[string, struct{}]
	sf   singleflight.Group
}

func NewAggregator(api rest.API, read *store.ReadState, toasts *ToastRack, notifier Notifier, bus FeedAnnouncer, logger *slog.Logger) *Aggregator {
	seen, _ := lru.New[string, struct{}](seenCacheSize)

	return &Aggregator{
		api:      api,
		read:     read,
		toasts:   toasts,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		seen:     seen,
	}
}

// Attach subscribes the aggregator's push handlers to the connection.
func (a *Aggregator) Attach(conn *push.Conn) {
	conn.On(model.EventNewIncident, func(f model.Frame) {
		var p model.IncidentPayload
		if !a.decode(f, &p) {
			return
		}
		a.HandleNew(p.Item())
	})
	conn.On(model.EventNewWelfareReport, func(f model.Frame) {
		var p model.WelfarePayload
		if !a.decode(f, &p) {
			return
		}
		a.HandleNew(p.Item())
	})
	conn.On(model.EventIncidentUpdated, func(f model.Frame) {
		var p model.IncidentPayload
		if !a.decode(f, &p) {
			return
		}
		a.HandleUpdate(p.Item())
	})
	conn.On(model.EventWelfareUpdated, func(f model.Frame) {
		var p model.WelfarePayload
		if !a.decode(f, &p) {
			return
		}
		a.HandleUpdate(p.Item())
	})
}

func (a *Aggregator) decode(f model.Frame, out any) bool {
	if err := json.Unmarshal(f.Data, out); err != nil {
		a.logger.Warn("feed: undecodable push payload dropped", "type", f.Type, "err", err)
		return false
	}
	return true
}

// HandleNew processes a new_* push event: idempotent against duplicate
// delivery, caps the retained list per kind (head insert, oldest dropped),
// and emits exactly one toast plus one native notification.
func (a *Aggregator) HandleNew(item model.NotificationItem) {
	a.mu.Lock()
	if a.containsLocked(item.ID) {
		a.mu.Unlock()
		return
	}
	if _, dup := a.seen.Get(item.ID); dup {
		// Already processed once and since evicted from the display window.
		a.mu.Unlock()
		return
	}
	a.seen.Add(item.ID, struct{}{})
	a.insertLocked(item)
	if a.refreshing {
		a.journal = append(a.journal, journalEntry{item: item})
	}
	a.mu.Unlock()

	a.toasts.Push(item)
	a.notifier.Notify(item)
	a.announce()
}

// HandleUpdate merges new fields into an existing item in place without
// changing list length or order. Events for unknown ids are dropped.
func (a *Aggregator) HandleUpdate(item model.NotificationItem) {
	a.mu.Lock()
	merged := a.mergeLocked(item)
	if merged && a.refreshing {
		a.journal = append(a.journal, journalEntry{item: item, update: true})
	}
	a.mu.Unlock()

	if merged {
		a.announce()
	}
}

// Refresh performs a full REST resync. Concurrent calls collapse into one
// flight. The unified endpoint is authoritative; on failure the two legacy
// endpoints are fetched in parallel with independent failure isolation, and
// when every path fails the previous working set stays untouched.
func (a *Aggregator) Refresh(ctx context.Context) error {
	_, err, _ := a.sf.Do("refresh", func() (any, error) {
		return nil, a.refresh(ctx)
	})
	return err
}

func (a *Aggregator) refresh(ctx context.Context) error {
	a.mu.Lock()
	a.refreshing = true
	a.journal = a.journal[:0]
	a.mu.Unlock()

	items, err := a.api.ListNotifications(ctx, snapshotLimit)
	if err != nil {
		a.logger.Warn("feed: unified refresh failed, falling back to legacy endpoints", "err", err)
		items, err = a.legacyRefresh(ctx)
	}

	if err != nil {
		a.mu.Lock()
		a.refreshing = false
		a.journal = a.journal[:0]
		a.mu.Unlock()
		return err
	}

	a.applySnapshot(items)
	a.announce()
	return nil
}

func (a *Aggregator) legacyRefresh(ctx context.Context) ([]model.NotificationItem, error) {
	var (
		incidents, welfare []model.NotificationItem
		incErr, welErr     error
	)

	// Both branches always run to completion; errors are captured per branch
	// so one failing endpoint cannot block the other from populating.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		incidents, incErr = a.api.ListRecentIncidents(gctx)
		return nil
	})
	g.Go(func() error {
		welfare, welErr = a.api.ListWelfareNeedingHelp(gctx)
		return nil
	})
	_ = g.Wait()

	if incErr != nil && welErr != nil {
		return nil, fmt.Errorf("feed: all refresh paths failed: %w", errors.Join(incErr, welErr))
	}
	if incErr != nil {
		a.logger.Warn("feed: legacy incident listing failed", "err", incErr)
	}
	if welErr != nil {
		a.logger.Warn("feed: legacy welfare listing failed", "err", welErr)
	}

	return append(incidents, welfare...), nil
}

// applySnapshot replaces the working set with the fresh snapshot, replays
// journaled push mutations on top, and prunes the read state to surviving
// ids.
func (a *Aggregator) applySnapshot(items []model.NotificationItem) {
	var incidents, welfare []model.NotificationItem
	for _, it := range items {
		switch it.Kind {
		case model.KindIncident:
			incidents = append(incidents, it)
		case model.KindWelfare:
			welfare = append(welfare, it)
		}
	}
	sortByFreshness(incidents)
	sortByFreshness(welfare)

	a.mu.Lock()
	a.incidents = truncate(incidents, incidentCap)
	a.welfare = truncate(welfare, welfareCap)

	for _, e := range a.journal {
		if e.update {
			a.mergeLocked(e.item)
			continue
		}
		if !a.containsLocked(e.item.ID) {
			a.insertLocked(e.item)
		}
	}
	a.journal = a.journal[:0]
	a.refreshing = false

	keep := make(map[string]struct{}, len(a.incidents)+len(a.welfare))
	for _, it := range a.incidents {
		keep[it.ID] = struct{}{}
	}
	for _, it := range a.welfare {
		keep[it.ID] = struct{}{}
	}
	a.mu.Unlock()

	a.read.Prune(keep)
}

// MarkRead acknowledges one notification: optimistic and immediate locally,
// best-effort sync to the server. A sync failure never rolls the local state
// back.
func (a *Aggregator) MarkRead(id string) {
	a.read.Add(id)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), readSyncTimeout)
		defer cancel()
		if err := a.api.MarkRead(ctx, id); err != nil {
			a.logger.Warn("feed: mark-read sync failed, keeping local state", "id", id, "err", err)
		}
	}()
	a.announce()
}

// MarkAllRead acknowledges the entire displayed list in one operation.
func (a *Aggregator) MarkAllRead() {
	merged := a.Merged()
	ids := make([]string, len(merged))
	for i, it := range merged {
		ids[i] = it.ID
	}
	a.read.AddAll(ids)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), readSyncTimeout)
		defer cancel()
		if err := a.api.MarkAllRead(ctx); err != nil {
			a.logger.Warn("feed: mark-all-read sync failed, keeping local state", "err", err)
		}
	}()
	a.announce()
}

// Merged returns the concatenated incident and welfare lists sorted
// descending by effective timestamp. The sort is stable, so ties keep
// insertion order.
func (a *Aggregator) Merged() []model.NotificationItem {
	a.mu.Lock()
	merged := make([]model.NotificationItem, 0, len(a.incidents)+len(a.welfare))
	merged = append(merged, a.incidents...)
	merged = append(merged, a.welfare...)
	a.mu.Unlock()

	sortByFreshness(merged)
	return merged
}

// UnreadCount derives the unread badge from the displayed list and the read
// set. Recomputed on every call, never cached.
func (a *Aggregator) UnreadCount() int {
	count := 0
	for _, it := range a.Merged() {
		if !a.read.Contains(it.ID) {
			count++
		}
	}
	return count
}

// PriorityCount counts displayed items demanding attention: high or critical
// priority, plus every welfare report regardless of its nominal priority.
func (a *Aggregator) PriorityCount() int {
	count := 0
	for _, it := range a.Merged() {
		if it.HighAttention() {
			count++
		}
	}
	return count
}

// IsRead reports whether an id is in the read set.
func (a *Aggregator) IsRead(id string) bool {
	return a.read.Contains(id)
}

// Toasts returns the live toast list.
func (a *Aggregator) Toasts() []model.Toast {
	return a.toasts.List()
}

// DismissToast removes a toast ahead of its timeout; unknown ids are a no-op.
func (a *Aggregator) DismissToast(id string) {
	a.toasts.Dismiss(id)
}

func (a *Aggregator) containsLocked(id string) bool {
	for i := range a.incidents {
		if a.incidents[i].ID == id {
			return true
		}
	}
	for i := range a.welfare {
		if a.welfare[i].ID == id {
			return true
		}
	}
	return false
}

func (a *Aggregator) insertLocked(item model.NotificationItem) {
	switch item.Kind {
	case model.KindIncident:
		a.incidents = truncate(prepend(a.incidents, item), incidentCap)
	case model.KindWelfare:
		a.welfare = truncate(prepend(a.welfare, item), welfareCap)
	}
}

func (a *Aggregator) mergeLocked(item model.NotificationItem) bool {
	var list []model.NotificationItem
	switch item.Kind {
	case model.KindIncident:
		list = a.incidents
	case model.KindWelfare:
		list = a.welfare
	}
	for i := range list {
		if list[i].ID == item.ID {
			list[i].MergeFrom(item)
			return true
		}
	}
	return false
}

func (a *Aggregator) announce() {
	if a.bus != nil {
		a.bus.AnnounceFeedUpdated()
	}
}

func prepend(list []model.NotificationItem, item model.NotificationItem) []model.NotificationItem {
	return append([]model.NotificationItem{item}, list...)
}

func truncate(list []model.NotificationItem, limit int) []model.NotificationItem {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}

func sortByFreshness(list []model.NotificationItem) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].OccurredAt > list[j].OccurredAt
	})
}
