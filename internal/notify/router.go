// Package notify provides the bounded notification feed and the user-facing
// alert surface.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/classify"
	"github.com/resident-x/go-powerdash/internal/domain"
)

// DefaultCapacity bounds the notification feed, evicting oldest first.
const DefaultCapacity = 50

// Sink is the external alerting surface notifications are forwarded to
// (the toast equivalent).
type Sink interface {
	Toast(n domain.Notification)
}

// Router buffers notifications newest-first and forwards each one to the
// sink. Pure forwarding plus eviction; no business logic beyond DeriveAlert.
type Router struct {
	mu            sync.RWMutex
	notifications []domain.Notification
	capacity      int
	sink          Sink
	seq           uint64
	logger        zerolog.Logger
}

// NewRouter creates a notification router. A nil sink buffers without
// forwarding.
func NewRouter(capacity int, sink Sink) *Router {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Router{
		notifications: make([]domain.Notification, 0, capacity),
		capacity:      capacity,
		sink:          sink,
		logger:        log.With().Str("component", "notify").Logger(),
	}
}

// Notify appends a notification to the feed, evicting the oldest entry past
// capacity, and forwards it to the sink.
func (r *Router) Notify(severity domain.Severity, message string) domain.Notification {
	n := domain.Notification{
		ID:        r.nextNotificationID(),
		Type:      severity,
		Message:   message,
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	r.notifications = append([]domain.Notification{n}, r.notifications...)
	if len(r.notifications) > r.capacity {
		r.notifications = r.notifications[:r.capacity]
	}
	r.mu.Unlock()

	if r.sink != nil {
		r.sink.Toast(n)
	}
	return n
}

// List returns a newest-first copy of the feed.
func (r *Router) List() []domain.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Remove deletes the notification with the given ID, if present.
func (r *Router) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.notifications {
		if n.ID == id {
			r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
			return
		}
	}
}

// Clear discards all buffered notifications.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = r.notifications[:0]
}

// Len returns the current feed length.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifications)
}

// DeriveAlert maps the state transitions that warrant a user-facing alert
// (power cut, critical battery) to a notification severity and message.
// Most events produce no alert.
func DeriveAlert(ev domain.Event) (domain.Severity, string, bool) {
	switch e := ev.(type) {
	case domain.PowerStatusEvent:
		if e.PowerCut {
			return domain.SeverityWarning, "Power cut detected!", true
		}
	case domain.BatteryUpdateEvent:
		if e.Level <= classify.BatteryCriticalLevel {
			return domain.SeverityError, fmt.Sprintf("Critical battery level: %d%%", e.Level), true
		}
	}
	return domain.SeverityInfo, "", false
}

// nextNotificationID generates an arrival-ordered notification ID. The
// sequence counter is per router, so independent instances never share
// state.
func (r *Router) nextNotificationID() string {
	seq := atomic.AddUint64(&r.seq, 1)
	return fmt.Sprintf("ntf_%d_%d", time.Now().UnixNano(), seq)
}

// LogSink renders notifications through zerolog, selecting the level purely
// from the notification type. Unrecognized types get the info presentation.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a zerolog-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.With().Str("component", "toast").Logger()}
}

// Toast renders a single notification.
func (s *LogSink) Toast(n domain.Notification) {
	var evt *zerolog.Event
	switch n.Type {
	case domain.SeverityError:
		evt = s.logger.Error()
	case domain.SeverityWarning:
		evt = s.logger.Warn()
	case domain.SeveritySuccess, domain.SeverityInfo:
		evt = s.logger.Info()
	default:
		evt = s.logger.Info()
	}

	evt.Str("notification_id", n.ID).
		Str("type", n.Type.String()).
		Msg(n.Message)
}
