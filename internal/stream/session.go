// Package stream maintains a consistent, diffable view of currently known
// positive-EV opportunities under a caller-supplied filter set. A Session is
// refreshed both periodically (manual refresh) and reactively (debounced
// change signals), and classifies every entity of each new snapshot as
// added, updated, or removed against the previous one.
package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmash55/unjuiced/internal/fetcher"
	"github.com/tmash55/unjuiced/pkg/models"
)

// State is the lifecycle phase of a session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateRefreshing    State = "refreshing"
)

// Config holds the session's timing windows.
type Config struct {
	// Debounce collapses bursts of relevant signals into one refresh.
	Debounce time.Duration
	// FlashWindow is how long updated entities keep their change record.
	FlashWindow time.Duration
	// HighlightWindow is how long added entities stay marked as new.
	HighlightWindow time.Duration
}

// DefaultConfig returns the production timing windows.
func DefaultConfig() Config {
	return Config{
		Debounce:        1000 * time.Millisecond,
		FlashWindow:     5000 * time.Millisecond,
		HighlightWindow: 10000 * time.Millisecond,
	}
}

// changeEntry pairs a change record with the version that produced it, so an
// expiry timer never clears a record written by a later diff.
type changeEntry struct {
	record  models.ChangeRecord
	version uint64
}

// Session owns one filter set's view of the opportunity stream. All state is
// instance-scoped: multiple sessions can run concurrently without sharing
// anything.
type Session struct {
	ID string

	fetcher fetcher.OpportunityFetcher
	clock   Clock
	cfg     Config

	mu           sync.Mutex
	ctx          context.Context
	filters      fetcher.Filters
	state        State
	cache        map[string]*models.Opportunity
	stale        map[string]*models.Opportunity
	changes      map[string]changeEntry
	highlights   map[string]uint64
	version      uint64
	totalScanned int
	lastError    string
	connected    bool

	debounce        Timer
	refreshInFlight bool
	refreshPending  bool

	onAdded func([]*models.Opportunity)
}

// NewSession creates a session. A nil clock uses real time; a zero config
// uses the default windows.
func NewSession(f fetcher.OpportunityFetcher, filters fetcher.Filters, clock Clock, cfg Config) *Session {
	if clock == nil {
		clock = NewRealClock()
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Session{
		ID:         uuid.NewString(),
		fetcher:    f,
		clock:      clock,
		cfg:        cfg,
		filters:    filters,
		state:      StateUninitialized,
		cache:      make(map[string]*models.Opportunity),
		stale:      make(map[string]*models.Opportunity),
		changes:    make(map[string]changeEntry),
		highlights: make(map[string]uint64),
	}
}

// SetOnAdded registers a hook invoked (on its own goroutine) with every batch
// of newly added opportunities. Must be called before Start.
func (s *Session) SetOnAdded(fn func([]*models.Opportunity)) {
	s.onAdded = fn
}

// Start stores the session context for signal-driven refreshes and performs
// the initial load.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.Load(ctx)
}

// Load performs the initial full fetch. On success the cache is populated
// and the session moves to Ready; on failure it stays uninitialized with the
// error recorded.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLoading
	filters := s.filters
	s.mu.Unlock()

	result, err := s.fetcher.Fetch(ctx, filters, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUninitialized
		s.lastError = err.Error()
		return err
	}

	s.cache = indexByID(result.Opportunities)
	s.stale = make(map[string]*models.Opportunity)
	s.changes = make(map[string]changeEntry)
	s.highlights = make(map[string]uint64)
	s.totalScanned = result.TotalScanned
	s.lastError = ""
	s.version++
	s.state = StateReady
	return nil
}

// UpdateFilters swaps the active filter set and reloads from scratch, exactly
// as a fresh mount would.
func (s *Session) UpdateFilters(ctx context.Context, filters fetcher.Filters) error {
	s.mu.Lock()
	s.filters = filters
	s.state = StateUninitialized
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()
	return s.Load(ctx)
}

// Refresh re-fetches and applies the diff. Only one refresh is logically in
// flight at a time: a trigger arriving mid-flight sets a pending flag and is
// coalesced into exactly one follow-up refresh once the current diff has been
// applied, so diffs never interleave out of order.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateUninitialized || s.state == StateLoading {
		s.mu.Unlock()
		return s.Load(ctx)
	}
	if s.refreshInFlight {
		s.refreshPending = true
		s.mu.Unlock()
		return nil
	}
	s.refreshInFlight = true
	s.state = StateRefreshing
	filters := s.filters
	s.mu.Unlock()

	var lastErr error
	for {
		result, err := s.fetcher.Fetch(ctx, filters, true)

		s.mu.Lock()
		if err != nil {
			// The previous snapshot stays on display; only the error
			// string changes.
			s.lastError = err.Error()
			lastErr = err
		} else {
			s.applyLocked(result)
			lastErr = nil
		}

		if s.refreshPending && ctx.Err() == nil {
			s.refreshPending = false
			s.mu.Unlock()
			continue
		}
		s.refreshInFlight = false
		s.state = StateReady
		s.mu.Unlock()
		return lastErr
	}
}

// applyLocked runs the diff against the current cache and installs the new
// snapshot atomically. Callers hold s.mu.
func (s *Session) applyLocked(result *fetcher.FetchResult) {
	diff := Diff(s.cache, result.Opportunities)
	next := indexByID(result.Opportunities)

	s.version++
	version := s.version

	// Removed entities move to the stale set instead of being purged:
	// callers may still render them dimmed.
	for _, id := range diff.Removed {
		s.stale[id] = s.cache[id]
	}
	for id := range next {
		delete(s.stale, id)
	}

	s.cache = next
	s.totalScanned = result.TotalScanned
	s.lastError = ""

	for _, id := range diff.Updated {
		s.changes[id] = changeEntry{record: diff.Changes[id], version: version}
		id := id
		s.clock.AfterFunc(s.cfg.FlashWindow, func() { s.expireChange(id, version) })
	}
	for _, id := range diff.Added {
		s.highlights[id] = version
		id := id
		s.clock.AfterFunc(s.cfg.HighlightWindow, func() { s.expireHighlight(id, version) })
	}

	if s.onAdded != nil && len(diff.Added) > 0 {
		added := make([]*models.Opportunity, 0, len(diff.Added))
		for _, id := range diff.Added {
			added = append(added, next[id])
		}
		go s.onAdded(added)
	}
}

func (s *Session) expireChange(id string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.changes[id]; ok && entry.version == version {
		delete(s.changes, id)
	}
}

func (s *Session) expireHighlight(id string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.highlights[id]; ok && v == version {
		delete(s.highlights, id)
	}
}

// HandleSignal feeds one inbound change signal into the session. Irrelevant
// signals are dropped before any timer is armed; relevant ones (re)arm a
// trailing-edge debounce that triggers a refresh when it fires.
func (s *Session) HandleSignal(keys []string) {
	s.mu.Lock()
	sports, markets := s.filters.Sports, s.filters.Markets
	s.mu.Unlock()

	if !anyRelevant(keys, sports, markets) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce == nil {
		s.debounce = s.clock.AfterFunc(s.cfg.Debounce, s.debounceFired)
		return
	}
	s.debounce.Reset(s.cfg.Debounce)
}

// debounceFired runs on the timer goroutine; blocking it on the fetch is
// fine, the session lock is not held across it.
func (s *Session) debounceFired() {
	s.mu.Lock()
	s.debounce = nil
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	_ = s.Refresh(ctx)
}

// SetConnected records the signal-feed connection state for consumers.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// Row is one opportunity plus its transient display annotations.
type Row struct {
	Opportunity *models.Opportunity  `json:"opportunity"`
	Stale       bool                 `json:"stale,omitempty"`
	New         bool                 `json:"new,omitempty"`
	Change      *models.ChangeRecord `json:"change,omitempty"`
}

// Snapshot is the consumer view of a session at one version.
type Snapshot struct {
	Opportunities []Row  `json:"opportunities"`
	Version       uint64 `json:"version"`
	State         State  `json:"state"`
	Connected     bool   `json:"connected"`
	LastError     string `json:"last_error,omitempty"`
	TotalScanned  int    `json:"total_scanned"`
}

// Snapshot returns the current view: live rows sorted by edge, stale rows
// appended for dimmed rendering. The version lets consumers detect when
// their own derived state has gone stale.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Row, 0, len(s.cache)+len(s.stale))
	for id, opp := range s.cache {
		row := Row{Opportunity: opp, New: s.highlights[id] != 0}
		if entry, ok := s.changes[id]; ok {
			record := entry.record
			row.Change = &record
		}
		rows = append(rows, row)
	}
	for _, opp := range s.stale {
		rows = append(rows, Row{Opportunity: opp, Stale: true})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Opportunity.Edge != rows[j].Opportunity.Edge {
			return rows[i].Opportunity.Edge > rows[j].Opportunity.Edge
		}
		return rows[i].Opportunity.ID() < rows[j].Opportunity.ID()
	})

	return Snapshot{
		Opportunities: rows,
		Version:       s.version,
		State:         s.state,
		Connected:     s.connected,
		LastError:     s.lastError,
		TotalScanned:  s.totalScanned,
	}
}

// Version returns the monotonic diff counter.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
