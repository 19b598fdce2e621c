package overlay

import (
	"encoding/json"

	"github.com/twistedx/killfeed/internal/domain"
)

// Command names as sent by clients.
const (
	CmdIncrementCounter   = "incrementCounter"
	CmdDecrementCounter   = "decrementCounter"
	CmdResetCounters      = "resetCounters"
	CmdUpdateMessage      = "updateMessage"
	CmdShowMessage        = "showMessage"
	CmdHideMessage        = "hideMessage"
	CmdTriggerCelebration = "triggerCelebration"
	CmdUpdateConfig       = "updateConfig"
	CmdResetConfig        = "resetConfig"
	CmdRequestConfig      = "requestConfig"
)

// Event names pushed to clients.
const (
	EventCountersUpdate     = "countersUpdate"
	EventMessageUpdate      = "messageUpdate"
	EventConfigUpdate       = "configUpdate"
	EventTriggerCelebration = "triggerCelebration"
)

const (
	defaultCelebration = "hurrah"
	maxMessageLength   = 500
)

// Command is a client request addressed to the store.
type Command struct {
	Name string
	Data json.RawMessage
}

// Result describes what an accepted command produced. A zero Event means
// nothing changed and nothing should be sent.
type Result struct {
	Event   string
	Payload any
	// Private results go back to the caller only.
	Private bool
}

func (r Result) Empty() bool { return r.Event == "" }

type handlerFunc func(s *Store, data json.RawMessage) (Result, error)

type handler struct {
	minLevel domain.AuthLevel
	apply    handlerFunc
	persist  bool
}

var dispatch = map[string]handler{
	CmdIncrementCounter:   {minLevel: domain.LevelModerator, apply: (*Store).incrementCounter},
	CmdDecrementCounter:   {minLevel: domain.LevelModerator, apply: (*Store).decrementCounter},
	CmdResetCounters:      {minLevel: domain.LevelModerator, apply: (*Store).resetCounters},
	CmdUpdateMessage:      {minLevel: domain.LevelModerator, apply: (*Store).updateMessage},
	CmdShowMessage:        {minLevel: domain.LevelModerator, apply: (*Store).showMessage},
	CmdHideMessage:        {minLevel: domain.LevelModerator, apply: (*Store).hideMessage},
	CmdTriggerCelebration: {minLevel: domain.LevelModerator, apply: (*Store).triggerCelebration},
	CmdUpdateConfig:       {minLevel: domain.LevelAdmin, apply: (*Store).updateConfig, persist: true},
	CmdResetConfig:        {minLevel: domain.LevelAdmin, apply: (*Store).resetConfig, persist: true},
	CmdRequestConfig:      {minLevel: domain.LevelNone, apply: (*Store).requestConfig},
}

// Known reports whether name is a store command.
func Known(name string) bool {
	_, ok := dispatch[name]
	return ok
}

// MinLevel returns the level required to run the named command.
func MinLevel(name string) (domain.AuthLevel, bool) {
	h, ok := dispatch[name]
	return h.minLevel, ok
}

// decodeName accepts either a bare JSON string or an object with a "type" field.
func decodeName(data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return obj.Type, nil
}
