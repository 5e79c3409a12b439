// Package store implements the state store: the single owner of the
// reconciled device state and the bounded log buffer.
package store

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/classify"
	"github.com/resident-x/go-powerdash/internal/domain"
)

// DefaultLogCapacity bounds the log buffer; oldest entries are evicted once
// the capacity is exceeded. Eviction is the only deletion path besides an
// explicit clear.
const DefaultLogCapacity = 50

// Subscriber receives the post-mutation state snapshot. The corresponding
// log entry is already in the buffer when the subscriber runs.
type Subscriber func(domain.DeviceState)

// Options configures a Store.
type Options struct {
	// LogCapacity bounds the log buffer. Zero means DefaultLogCapacity.
	LogCapacity int
	// InitialTheme overrides the default theme, typically from persisted
	// preferences.
	InitialTheme *domain.Theme
}

// Store holds the reconciled device state and the bounded, newest-first log
// buffer. All mutation goes through Apply or the explicit view-originated
// mutators; readers only ever receive copies.
type Store struct {
	mu       sync.RWMutex
	state    domain.DeviceState
	logs     []domain.LogEntry
	capacity int

	subMu   sync.RWMutex
	subs    map[uint64]Subscriber
	nextSub uint64

	seq    uint64
	logger zerolog.Logger
}

// New creates a state store with fully defaulted state. A nil options value
// selects defaults.
func New(opts *Options) *Store {
	capacity := DefaultLogCapacity
	state := domain.DefaultDeviceState()
	if opts != nil {
		if opts.LogCapacity > 0 {
			capacity = opts.LogCapacity
		}
		if opts.InitialTheme != nil {
			state.Theme = *opts.InitialTheme
		}
	}

	return &Store{
		state:    state,
		logs:     make([]domain.LogEntry, 0, capacity),
		capacity: capacity,
		subs:     make(map[uint64]Subscriber),
		logger:   log.With().Str("component", "store").Logger(),
	}
}

// Apply folds an inbound event into the device state and appends its
// classified log entry, then notifies subscribers. State mutation and log
// append happen under one lock, so an observer never sees one without the
// other. Events the store does not own (notification, command_ack) are
// ignored.
func (s *Store) Apply(ev domain.Event) {
	if ev == nil {
		return
	}

	s.mu.Lock()

	switch e := ev.(type) {
	case domain.InverterStatusEvent:
		s.state.InverterStatus = e.Status
	case domain.PowerStatusEvent:
		s.state.PowerCut = e.PowerCut
	case domain.BatteryUpdateEvent:
		s.state.BatteryLevel = e.Level
	case domain.EnergyUpdateEvent:
		s.state.EnergyConsumption = e.Consumption
	case domain.SensorDataEvent:
		s.state.Temperature = e.Temperature
		s.state.Humidity = e.Humidity
	case domain.SystemLogEvent:
		// Log-only event, no state change.
	case domain.NotificationEvent, domain.CommandAckEvent:
		// Routed to the notification feed by the connection manager, not
		// folded here.
		s.mu.Unlock()
		return
	default:
		s.mu.Unlock()
		return
	}

	entry := classify.Classify(ev)
	s.appendLocked(entry)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// appendLocked prepends a classified entry to the log buffer, evicting the
// oldest entry beyond capacity. Caller holds s.mu.
func (s *Store) appendLocked(e classify.Entry) {
	entry := domain.LogEntry{
		ID:        s.nextEntryID(),
		Timestamp: time.Now(),
		Type:      e.Type,
		Source:    e.Source,
		Message:   e.Message,
	}

	s.logs = append([]domain.LogEntry{entry}, s.logs...)
	if len(s.logs) > s.capacity {
		s.logs = s.logs[:s.capacity]
	}
}

// nextEntryID generates an arrival-ordered entry ID. The sequence counter
// keeps IDs unique under bursty delivery where timestamps collide.
func (s *Store) nextEntryID() string {
	seq := atomic.AddUint64(&s.seq, 1)
	return fmt.Sprintf("log_%d_%d", time.Now().UnixNano(), seq)
}

// Snapshot returns a copy of the current device state.
func (s *Store) Snapshot() domain.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Filter selects log entries by type, source and message substring. Zero
// values (or "all") match everything.
type Filter struct {
	Type   string
	Source string
	Search string
}

// Matches reports whether the entry passes the filter.
func (f Filter) Matches(entry domain.LogEntry) bool {
	if f.Type != "" && f.Type != "all" && entry.Type.String() != f.Type {
		return false
	}
	if f.Source != "" && f.Source != "all" && entry.Source != f.Source {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(entry.Message), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Log returns a newest-first copy of the entries matching the filter. The
// read is non-destructive; the buffer is untouched.
func (s *Store) Log(filter Filter) []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LogEntry, 0, len(s.logs))
	for _, entry := range s.logs {
		if filter.Matches(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// LogLen returns the current number of buffered entries.
func (s *Store) LogLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// ClearLog discards all buffered log entries.
func (s *Store) ClearLog() {
	s.mu.Lock()
	s.logs = s.logs[:0]
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Subscribe registers a callback invoked synchronously after every mutation.
// The returned function unregisters it and is safe to call at any time,
// including from within the callback itself.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify delivers the snapshot to every current subscriber. The subscriber
// list is copied first so unsubscribing mid-round cannot affect delivery to
// the others, and each callback is isolated: a panicking subscriber never
// aborts the round or the ingestion pipeline.
func (s *Store) notify(snapshot domain.DeviceState) {
	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		s.invoke(fn, snapshot)
	}
}

func (s *Store) invoke(fn Subscriber, snapshot domain.DeviceState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().
				Interface("panic", r).
				Msg("Subscriber panicked, continuing")
		}
	}()
	fn(snapshot)
}

// AddSchedule appends a schedule entry, preserving insertion order.
func (s *Store) AddSchedule(sched domain.Schedule) {
	s.mu.Lock()
	s.state.Schedules = append(s.state.Schedules, sched)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// RemoveSchedule deletes the schedule with the given ID, if present.
func (s *Store) RemoveSchedule(id string) {
	s.mu.Lock()
	kept := s.state.Schedules[:0]
	for _, sched := range s.state.Schedules {
		if sched.ID != id {
			kept = append(kept, sched)
		}
	}
	s.state.Schedules = kept
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// ToggleManualMode flips manual mode and returns the new value.
func (s *Store) ToggleManualMode() bool {
	s.mu.Lock()
	s.state.IsManualMode = !s.state.IsManualMode
	mode := s.state.IsManualMode
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return mode
}

// SetTheme updates the theme choice. Persistence is the caller's concern.
func (s *Store) SetTheme(theme domain.Theme) {
	s.mu.Lock()
	s.state.Theme = theme
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Reset restores the device state to its defaults, keeping the current
// theme, and clears nothing else.
func (s *Store) Reset() {
	s.mu.Lock()
	theme := s.state.Theme
	s.state = domain.DefaultDeviceState()
	s.state.Theme = theme
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}
