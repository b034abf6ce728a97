// Package rollback is the transport the simulation delegates input exchange,
// prediction and replay scheduling to. A Session hands back an ordered list
// of Save/Load/Advance requests each frame; the caller executes them in
// order against its live state.
package rollback

import (
	"errors"
	"fmt"
	"time"

	"github.com/onein50million/counter-attack/internal/state"
)

var (
	// ErrNotSynchronized is returned until the peers finish their handshake.
	ErrNotSynchronized = errors.New("rollback: session not synchronized")
	// ErrPredictionThreshold is returned when advancing would predict more
	// frames than the session allows.
	ErrPredictionThreshold = errors.New("rollback: prediction threshold reached")
	// ErrInvalidHandle is returned for a handle the session does not own.
	ErrInvalidHandle = errors.New("rollback: invalid player handle")
	// ErrConfigMismatch is returned when the peer runs different tuning.
	ErrConfigMismatch = errors.New("rollback: peer configuration mismatch")
	// ErrMalformedPacket is returned by the codec for undecodable data.
	ErrMalformedPacket = errors.New("rollback: malformed packet")
	// ErrMismatchedChecksum is returned by the sync test session when a
	// resimulated frame hashes differently from the original run.
	ErrMismatchedChecksum = errors.New("rollback: mismatched checksum")
	// ErrNotSupported is returned by operations a session type does not offer.
	ErrNotSupported = errors.New("rollback: operation not supported")
	// ErrClosed is returned once the session or socket has been closed.
	ErrClosed = errors.New("rollback: closed")
)

// MismatchError describes a determinism failure found by SyncTestSession.
type MismatchError struct {
	Frame    uint64
	Expected uint64
	Got      uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("rollback: frame %d checksum %016x, resimulated %016x", e.Frame, e.Expected, e.Got)
}

func (e *MismatchError) Unwrap() error {
	return ErrMismatchedChecksum
}

// InputStatus describes how trustworthy an input handed to AdvanceFrame is.
type InputStatus uint8

const (
	// Confirmed inputs were received from their owner.
	Confirmed InputStatus = iota
	// Predicted inputs stand in for inputs that have not arrived yet.
	Predicted
	// Disconnected inputs belong to a peer that has dropped.
	Disconnected
)

func (s InputStatus) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Predicted:
		return "predicted"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("input_status(%d)", uint8(s))
	}
}

// PlayerInput pairs an input with its status.
type PlayerInput struct {
	Input  Input
	Status InputStatus
}

// Cell receives a saved snapshot from the caller and hands it back on load.
// The session owns cells; the caller only fills and reads them.
type Cell struct {
	frame    uint64
	snapshot state.Snapshot
	saved    bool
}

// Save stores the snapshot for frame.
func (c *Cell) Save(frame uint64, snapshot state.Snapshot) {
	c.frame = frame
	c.snapshot = snapshot
	c.saved = true
}

// Load returns the stored snapshot.
func (c *Cell) Load() (state.Snapshot, bool) {
	if c == nil || !c.saved {
		return state.Snapshot{}, false
	}
	return c.snapshot, true
}

// Frame reports which frame the cell holds.
func (c *Cell) Frame() (uint64, bool) {
	if c == nil || !c.saved {
		return 0, false
	}
	return c.frame, true
}

// Checksum returns the fingerprint of the stored snapshot.
func (c *Cell) Checksum() (uint64, bool) {
	if c == nil || !c.saved {
		return 0, false
	}
	return c.snapshot.Fingerprint, true
}

func (c *Cell) reset() {
	*c = Cell{}
}

// Request is one unit of work returned by Session.AdvanceFrame.
type Request interface {
	request()
}

// SaveState asks the caller to snapshot its live state, which must be at
// Frame, into Cell.
type SaveState struct {
	Frame uint64
	Cell  *Cell
}

// LoadState asks the caller to replace its live state with the snapshot in
// Cell, rewinding to Frame.
type LoadState struct {
	Frame uint64
	Cell  *Cell
}

// AdvanceFrame asks the caller to simulate Frame with the given inputs.
type AdvanceFrame struct {
	Frame  uint64
	Inputs [state.PlayerCount]PlayerInput
}

func (SaveState) request()    {}
func (LoadState) request()    {}
func (AdvanceFrame) request() {}

// NetworkStats summarizes the link to a remote player.
type NetworkStats struct {
	Ping               time.Duration `json:"ping"`
	SendQueueLen       int           `json:"sendQueueLen"`
	KbpsSent           float64       `json:"kbpsSent"`
	LocalFramesBehind  int32         `json:"localFramesBehind"`
	RemoteFramesBehind int32         `json:"remoteFramesBehind"`
}

// EventKind names a session notification.
type EventKind string

const (
	EventSynchronizing      EventKind = "synchronizing"
	EventSynchronized       EventKind = "synchronized"
	EventNetworkInterrupted EventKind = "network_interrupted"
	EventNetworkResumed     EventKind = "network_resumed"
	EventDisconnected       EventKind = "disconnected"
	EventDesyncDetected     EventKind = "desync_detected"
)

// SessionEvent is a notification about the link rather than the game.
type SessionEvent struct {
	Kind   EventKind
	Handle state.Handle
	// Count and Total report handshake progress.
	Count int
	Total int
	// Timeout is the time left before an interrupted peer is dropped.
	Timeout time.Duration
	// Frame, LocalChecksum and RemoteChecksum describe a desync.
	Frame          uint64
	LocalChecksum  uint64
	RemoteChecksum uint64
}

// Session is the contract between the simulation and its rollback transport.
type Session interface {
	// AddLocalInput registers the input for the next frame of a local player.
	AddLocalInput(handle state.Handle, input Input) error
	// PollRemote exchanges packets and services timers. It never blocks.
	PollRemote()
	// AdvanceFrame returns the requests to execute, in order, for this tick.
	AdvanceFrame() ([]Request, error)
	// FramesAhead reports how many frames the local side runs ahead of the
	// peer; positive values ask the caller to slow down.
	FramesAhead() int
	// NetworkStats reports link statistics for a remote handle.
	NetworkStats(handle state.Handle) (NetworkStats, error)
	// Events drains pending session notifications.
	Events() []SessionEvent
	// LocalHandles lists the handles this process supplies input for.
	LocalHandles() []state.Handle
	// Close releases the transport.
	Close() error
}
