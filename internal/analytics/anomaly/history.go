package anomaly

import (
	"sync"
	"time"
)

// DefaultMaxAlertHistory bounds AlertHistory when no size is given
const DefaultMaxAlertHistory = 100

// Alert is the history entry of one anomaly
type Alert struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        Type      `json:"type"`
	Severity    Severity  `json:"severity"`
	SessionID   string    `json:"sessionId,omitempty"`
	Description string    `json:"description"`
}

// AlertHistory is a fixed-size ring; once full the oldest alert is overwritten
type AlertHistory struct {
	mu    sync.RWMutex
	buf   []Alert
	start int
	size  int
}

// NewAlertHistory creates a ring holding up to max alerts
func NewAlertHistory(max int) *AlertHistory {
	if max <= 0 {
		max = DefaultMaxAlertHistory
	}
	return &AlertHistory{buf: make([]Alert, max)}
}

// Append adds alerts in order, evicting the oldest ones as needed
func (h *AlertHistory) Append(alerts ...Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, a := range alerts {
		if h.size < len(h.buf) {
			h.buf[(h.start+h.size)%len(h.buf)] = a
			h.size++
			continue
		}
		h.buf[h.start] = a
		h.start = (h.start + 1) % len(h.buf)
	}
}

// History returns the alerts oldest first
func (h *AlertHistory) History() []Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot()
}

// snapshot copies the ring oldest first; callers hold the lock
func (h *AlertHistory) snapshot() []Alert {
	out := make([]Alert, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of retained alerts
func (h *AlertHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the ring capacity
func (h *AlertHistory) Cap() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buf)
}

// Resize changes the capacity, keeping the most recent alerts
func (h *AlertHistory) Resize(max int) {
	if max <= 0 {
		max = DefaultMaxAlertHistory
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.snapshot()
	if len(current) > max {
		current = current[len(current)-max:]
	}
	h.buf = make([]Alert, max)
	copy(h.buf, current)
	h.start = 0
	h.size = len(current)
}

// AlertOf converts an anomaly into a history entry
func AlertOf(a Anomaly) Alert {
	return Alert{
		ID:          a.ID,
		Timestamp:   a.DetectedAt,
		Type:        a.Type,
		Severity:    a.Severity,
		SessionID:   a.SessionID,
		Description: a.Description,
	}
}
