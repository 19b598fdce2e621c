package domain

// CounterType names one of the fixed kill-feed counters.
type CounterType string

const (
	CounterKills     CounterType = "kills"
	CounterExtracted CounterType = "extracted"
	CounterKIA       CounterType = "kia"
)

// ParseCounterType validates a counter name.
func ParseCounterType(s string) (CounterType, bool) {
	switch CounterType(s) {
	case CounterKills, CounterExtracted, CounterKIA:
		return CounterType(s), true
	default:
		return "", false
	}
}

// Counters holds the kill-feed counts. Values never go below zero.
type Counters struct {
	Kills     int `json:"kills"`
	Extracted int `json:"extracted"`
	KIA       int `json:"kia"`
}

func (c *Counters) field(t CounterType) *int {
	switch t {
	case CounterKills:
		return &c.Kills
	case CounterExtracted:
		return &c.Extracted
	case CounterKIA:
		return &c.KIA
	default:
		return nil
	}
}

// Increment bumps the named counter. Unknown counters are ignored.
func (c *Counters) Increment(t CounterType) bool {
	p := c.field(t)
	if p == nil {
		return false
	}
	*p++
	return true
}

// Decrement lowers the named counter, flooring at zero.
func (c *Counters) Decrement(t CounterType) bool {
	p := c.field(t)
	if p == nil {
		return false
	}
	*p = max(0, *p-1)
	return true
}

// Get returns the value of the named counter.
func (c Counters) Get(t CounterType) int {
	if p := c.field(t); p != nil {
		return *p
	}
	return 0
}

// Message is the scrolling overlay message. Updates replace it whole.
type Message struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// Participant is an approved realtime connection that may issue commands.
type Participant struct {
	ConnID      string `json:"socketId"`
	Name        string `json:"name"`
	DiscordID   string `json:"discordId,omitempty"`
	IsAdmin     bool   `json:"isAdmin"`
	ConnectedAt string `json:"connectedAt"`
}

// PendingRequest is a connection waiting for manual admin approval.
type PendingRequest struct {
	ConnID      string `json:"socketId"`
	Name        string `json:"name"`
	RequestedAt string `json:"requestedAt"`
}

// Snapshot is the full overlay state pushed to new connections.
type Snapshot struct {
	Config   OverlayConfig `json:"config"`
	Counters Counters      `json:"counters"`
	Message  Message       `json:"message"`
}
