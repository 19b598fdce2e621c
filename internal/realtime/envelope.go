package realtime

import (
	"encoding/json"
	"fmt"
)

// Broadcast channels. Every connection is subscribed to ChannelOverlay; admin
// connections are additionally subscribed to ChannelAdmin.
const (
	ChannelOverlay = "overlay"
	ChannelAdmin   = "overlay:admin"
)

// Roster and approval events.
const (
	EventApprovedModeratorsUpdate = "approvedModeratorsUpdate"
	EventPendingRequestsUpdate    = "pendingRequestsUpdate"
	EventAccessGranted            = "accessGranted"
	EventAccessDenied             = "accessDenied"
	EventKicked                   = "kicked"
)

// Participant management commands.
const (
	CmdRequestParticipantAccess = "requestParticipantAccess"
	CmdApproveParticipant       = "approveParticipant"
	CmdDenyParticipant          = "denyParticipant"
	CmdKickParticipant          = "kickParticipant"
	CmdKickModerator            = "kickModerator"
)

// Envelope is the wire format of every server-to-client message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps data in an envelope.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return out, nil
}
