// Package proto defines the JSON messages streamed to presentation clients
// over the event feed.
package proto

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/onein50million/counter-attack/internal/event"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/sim"
	"github.com/onein50million/counter-attack/internal/state"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Message type identifiers.
const (
	TypeEvent   = "event"
	TypeSession = "session"
	TypeStatus  = "status"
	// TypeAttack is the only inbound message: the client's player swings.
	TypeAttack = "attack"
)

// GameOver carries the end-of-match result as seen by the local player.
type GameOver struct {
	Loser   *state.Handle `json:"loser,omitempty" jsonschema:"description=Losing player slot; absent on a tie"`
	Outcome event.Result  `json:"outcome" jsonschema:"description=Victory, Defeat or Tie for the local player"`
}

// EventMessage wraps one simulation event. Exactly one payload field is set,
// matching Kind.
type EventMessage struct {
	Ver               int                            `json:"ver" jsonschema:"description=Protocol version"`
	Type              string                         `json:"type" jsonschema:"description=Always event"`
	Match             string                         `json:"match" jsonschema:"description=Match identifier shared by every message of a run"`
	Kind              event.Kind                     `json:"kind"`
	Frame             uint64                         `json:"frame" jsonschema:"description=Frame whose advancement produced the event"`
	Block             *event.BlockEvent              `json:"block,omitempty"`
	Hit               *event.HitEvent                `json:"hit,omitempty"`
	Clash             *event.ClashEvent              `json:"clash,omitempty"`
	FinalClashStarted *event.FinalClashStartedEvent  `json:"finalClashStarted,omitempty"`
	StaminaDepleted   *event.StaminaDepletedEvent    `json:"staminaDepleted,omitempty"`
	LifeLost          *event.FinalClashLifeLostEvent `json:"lifeLost,omitempty"`
	GameOver          *GameOver                      `json:"gameOver,omitempty"`
}

// SessionMessage reports a change in the link to the peer.
type SessionMessage struct {
	Ver     int                `json:"ver"`
	Type    string             `json:"type"`
	Match   string             `json:"match"`
	Kind    rollback.EventKind `json:"kind"`
	Player  state.Handle       `json:"player"`
	Count   int                `json:"count,omitempty"`
	Total   int                `json:"total,omitempty"`
	Frame   uint64             `json:"frame,omitempty"`
	Timeout int64              `json:"timeoutMillis,omitempty"`
}

// StatusMessage is the per-tick view of the live match.
type StatusMessage struct {
	Ver    int        `json:"ver"`
	Type   string     `json:"type"`
	Match  string     `json:"match"`
	Status sim.Status `json:"status"`
}

// ClientMessage is what a presentation client may send.
type ClientMessage struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"type" jsonschema:"description=attack"`
}

// NewEventMessage wraps e for the feed. local decides the game over outcome.
func NewEventMessage(match string, local state.Handle, e event.Event) EventMessage {
	msg := EventMessage{
		Ver:   Version,
		Type:  TypeEvent,
		Match: match,
		Kind:  e.Kind(),
		Frame: e.FrameNumber(),
	}
	switch ev := e.(type) {
	case event.BlockEvent:
		msg.Block = &ev
	case event.HitEvent:
		msg.Hit = &ev
	case event.ClashEvent:
		msg.Clash = &ev
	case event.FinalClashStartedEvent:
		msg.FinalClashStarted = &ev
	case event.StaminaDepletedEvent:
		msg.StaminaDepleted = &ev
	case event.FinalClashLifeLostEvent:
		msg.LifeLost = &ev
	case event.GameOverEvent:
		msg.GameOver = &GameOver{Loser: ev.Loser, Outcome: ev.Outcome(local)}
	}
	return msg
}

// NewSessionMessage wraps a session notification for the feed.
func NewSessionMessage(match string, ev rollback.SessionEvent) SessionMessage {
	return SessionMessage{
		Ver:     Version,
		Type:    TypeSession,
		Match:   match,
		Kind:    ev.Kind,
		Player:  ev.Handle,
		Count:   ev.Count,
		Total:   ev.Total,
		Frame:   ev.Frame,
		Timeout: ev.Timeout.Milliseconds(),
	}
}

// NewStatusMessage wraps a stepper status for the feed.
func NewStatusMessage(match string, status sim.Status) StatusMessage {
	return StatusMessage{Ver: Version, Type: TypeStatus, Match: match, Status: status}
}

// Encode renders any feed message.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeClient parses an inbound client message.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// Schemas reflects every message type into a JSON schema, keyed by message type.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	build := func(v any, title, description string) *jsonschema.Schema {
		schema := reflector.Reflect(v)
		schema.Title = title
		schema.Description = description
		return schema
	}
	return map[string]*jsonschema.Schema{
		TypeEvent:   build(new(EventMessage), "Event", "A simulation event surfaced to the local player"),
		TypeSession: build(new(SessionMessage), "Session", "A change in the link to the remote peer"),
		TypeStatus:  build(new(StatusMessage), "Status", "The live match state after a tick"),
		TypeAttack:  build(new(ClientMessage), "Client", "Inbound message from a presentation client"),
	}
}
