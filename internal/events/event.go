// README: Event types delivered over the fan-out layer.
package events

import (
	"time"

	"lifeline/internal/types"
)

type Type string

const (
	TypeLocationUpdate Type = "location_update"
	TypeStatusUpdate   Type = "status_update"
	TypeChatMessage    Type = "chat_message"
	TypeTyping         Type = "typing"
	TypePaymentUpdate  Type = "payment_update"
)

// Event is ephemeral: it is delivered to whoever is subscribed at publish
// time and then gone. No queueing, no replay; reconnecting clients re-fetch
// current state through the pull API.
type Event struct {
	Type      Type           `json:"type"`
	RequestID types.ID       `json:"request_id,omitempty"`
	UserID    types.ID       `json:"user_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// Typed subscription keys. Routing is by key equality, never by assembled
// string room names.
type (
	RequestKey types.ID
	UserKey    types.ID
)
