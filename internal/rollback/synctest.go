package rollback

import (
	"fmt"

	"github.com/onein50million/counter-attack/internal/state"
)

// DefaultCheckDistance is how many frames SyncTestSession rewinds per
// advance when none is configured.
const DefaultCheckDistance = 2

// SyncTestSession runs both players locally and, every frame, rewinds
// checkDistance frames and resimulates them. Any resimulated frame whose
// fingerprint differs from the original run is a determinism bug.
type SyncTestSession struct {
	checkDistance uint64
	current       uint64
	pending       [state.PlayerCount]*Input
	inputs        map[uint64][state.PlayerCount]Input
	history       map[uint64]*Cell
	checks        []pendingCheck
}

type pendingCheck struct {
	frame uint64
	cell  *Cell
}

// NewSyncTestSession builds a session that rewinds checkDistance frames on
// every advance. Zero disables rewinding.
func NewSyncTestSession(checkDistance int) (*SyncTestSession, error) {
	if checkDistance < 0 {
		return nil, fmt.Errorf("rollback: check distance must not be negative, got %d", checkDistance)
	}
	return &SyncTestSession{
		checkDistance: uint64(checkDistance),
		inputs:        make(map[uint64][state.PlayerCount]Input),
		history:       make(map[uint64]*Cell),
	}, nil
}

// LocalHandles reports both players; a sync test owns every input.
func (s *SyncTestSession) LocalHandles() []state.Handle {
	return []state.Handle{0, 1}
}

// AddLocalInput stores the input for the next advance.
func (s *SyncTestSession) AddLocalInput(handle state.Handle, input Input) error {
	if !handle.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, handle)
	}
	in := input
	s.pending[handle] = &in
	return nil
}

// PollRemote is a no-op; there is no remote.
func (s *SyncTestSession) PollRemote() {}

// FramesAhead is always zero.
func (s *SyncTestSession) FramesAhead() int { return 0 }

// NetworkStats is not available without a network.
func (s *SyncTestSession) NetworkStats(state.Handle) (NetworkStats, error) {
	return NetworkStats{}, ErrNotSupported
}

// Events is always empty.
func (s *SyncTestSession) Events() []SessionEvent { return nil }

// Close is a no-op.
func (s *SyncTestSession) Close() error { return nil }

// CurrentFrame reports the frame the next advance simulates.
func (s *SyncTestSession) CurrentFrame() uint64 { return s.current }

// AdvanceFrame verifies the previous round of resimulation, then saves and
// advances the current frame and schedules a rewind of checkDistance frames.
// Players without a registered input advance with a blank one.
func (s *SyncTestSession) AdvanceFrame() ([]Request, error) {
	if err := s.verify(); err != nil {
		return nil, err
	}

	var frameInputs [state.PlayerCount]Input
	for i := range frameInputs {
		if s.pending[i] != nil {
			frameInputs[i] = *s.pending[i]
		} else {
			frameInputs[i] = BlankInput()
		}
		s.pending[i] = nil
	}
	s.inputs[s.current] = frameInputs

	cell := &Cell{}
	s.history[s.current] = cell
	requests := []Request{
		SaveState{Frame: s.current, Cell: cell},
		s.advance(s.current),
	}
	s.current++

	if s.checkDistance > 0 && s.current >= s.checkDistance {
		start := s.current - s.checkDistance
		requests = append(requests, LoadState{Frame: start, Cell: s.history[start]})
		for f := start; f < s.current; f++ {
			if f > start {
				verify := &Cell{}
				s.checks = append(s.checks, pendingCheck{frame: f, cell: verify})
				requests = append(requests, SaveState{Frame: f, Cell: verify})
			}
			requests = append(requests, s.advance(f))
		}
	}

	s.prune()
	return requests, nil
}

func (s *SyncTestSession) advance(f uint64) AdvanceFrame {
	recorded := s.inputs[f]
	req := AdvanceFrame{Frame: f}
	for i := range recorded {
		req.Inputs[i] = PlayerInput{Input: recorded[i], Status: Confirmed}
	}
	return req
}

func (s *SyncTestSession) verify() error {
	remaining := s.checks[:0]
	for _, check := range s.checks {
		original := s.history[check.frame]
		expected, ok := original.Checksum()
		if !ok {
			remaining = append(remaining, check)
			continue
		}
		got, ok := check.cell.Checksum()
		if !ok {
			continue
		}
		if got != expected {
			s.checks = nil
			return &MismatchError{Frame: check.frame, Expected: expected, Got: got}
		}
	}
	s.checks = remaining
	return nil
}

func (s *SyncTestSession) prune() {
	keep := s.checkDistance + 1
	if s.current <= keep {
		return
	}
	horizon := s.current - keep
	for f := range s.history {
		if f < horizon {
			delete(s.history, f)
		}
	}
	for f := range s.inputs {
		if f < horizon {
			delete(s.inputs, f)
		}
	}
}
