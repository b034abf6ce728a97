package rollback

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/state"
)

const (
	// DefaultMaxPrediction is how many frames may be simulated ahead of the
	// last confirmed remote input.
	DefaultMaxPrediction = 8
	// frameAdvantageWindow is the number of samples averaged by FramesAhead.
	frameAdvantageWindow = 30
	// checksumHistory bounds the retained desync checksums per side.
	checksumHistory = 16
)

// P2PConfig tunes a two-player session.
type P2PConfig struct {
	LocalHandle   state.Handle
	InputDelay    int
	MaxPrediction int
	// ConfigTag must match the peer's; it fingerprints gameplay tuning.
	ConfigTag     uint64
	FrameDuration time.Duration
	Clock         frame.Source

	SyncRoundtrips        int
	SyncRetryInterval     time.Duration
	KeepAliveInterval     time.Duration
	QualityReportInterval time.Duration
	DisconnectNotifyStart time.Duration
	DisconnectTimeout     time.Duration
	// DesyncInterval is the frame spacing of checksum exchange; zero
	// disables desync detection.
	DesyncInterval uint64
}

// DefaultP2PConfig returns the stock link timings for the given local slot.
func DefaultP2PConfig(local state.Handle) P2PConfig {
	return P2PConfig{
		LocalHandle:           local,
		MaxPrediction:         DefaultMaxPrediction,
		FrameDuration:         100 * time.Millisecond,
		SyncRoundtrips:        3,
		SyncRetryInterval:     200 * time.Millisecond,
		KeepAliveInterval:     200 * time.Millisecond,
		QualityReportInterval: 200 * time.Millisecond,
		DisconnectNotifyStart: 500 * time.Millisecond,
		DisconnectTimeout:     2 * time.Second,
		DesyncInterval:        10,
	}
}

type linkPhase uint8

const (
	phaseSyncing linkPhase = iota
	phaseRunning
	phaseDisconnected
)

// P2PSession exchanges inputs with one remote peer over a Socket, predicts
// the remote player's missing inputs as blank, and schedules a rollback when
// a confirmed input disagrees with what was predicted.
type P2PSession struct {
	cfg    P2PConfig
	socket Socket
	clock  frame.Source
	remote state.Handle
	err    error

	phase         linkPhase
	syncNonce     uint32
	syncRemaining int
	lastSyncSent  time.Time

	current        uint64
	pendingLocal   *Input
	localInputs    map[uint64]Input
	nextLocalFrame uint64
	remoteInputs   map[uint64]Input
	nextRemote     uint64
	predicted      map[uint64]Input
	firstIncorrect uint64
	ackedByRemote  uint64
	cells          []Cell

	localAdvantage  [frameAdvantageWindow]int32
	remoteAdvantage [frameAdvantageWindow]int32
	lastRemoteAdv   int32
	lastLocalAdv    int32
	rtt             time.Duration

	start         time.Time
	lastReceived  time.Time
	lastSent      time.Time
	lastInputSent time.Time
	lastQuality   time.Time
	interrupted   bool
	bytesSent     uint64
	malformed     uint64

	nextChecksum    uint64
	localChecksums  map[uint64]uint64
	remoteChecksums map[uint64]uint64

	events []SessionEvent
}

// NewP2PSession starts the handshake with the peer behind socket.
func NewP2PSession(cfg P2PConfig, socket Socket) (*P2PSession, error) {
	if socket == nil {
		return nil, fmt.Errorf("rollback: socket is required")
	}
	if !cfg.LocalHandle.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, cfg.LocalHandle)
	}
	defaults := DefaultP2PConfig(cfg.LocalHandle)
	if cfg.MaxPrediction <= 0 {
		cfg.MaxPrediction = defaults.MaxPrediction
	}
	if cfg.InputDelay < 0 {
		return nil, fmt.Errorf("rollback: input delay must not be negative, got %d", cfg.InputDelay)
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = defaults.FrameDuration
	}
	if cfg.SyncRoundtrips <= 0 {
		cfg.SyncRoundtrips = defaults.SyncRoundtrips
	}
	if cfg.SyncRetryInterval <= 0 {
		cfg.SyncRetryInterval = defaults.SyncRetryInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaults.KeepAliveInterval
	}
	if cfg.QualityReportInterval <= 0 {
		cfg.QualityReportInterval = defaults.QualityReportInterval
	}
	if cfg.DisconnectNotifyStart <= 0 {
		cfg.DisconnectNotifyStart = defaults.DisconnectNotifyStart
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = frame.SystemSource()
	}

	now := clock.Now()
	s := &P2PSession{
		cfg:             cfg,
		socket:          socket,
		clock:           clock,
		remote:          cfg.LocalHandle.Opponent(),
		syncRemaining:   cfg.SyncRoundtrips,
		localInputs:     make(map[uint64]Input),
		remoteInputs:    make(map[uint64]Input),
		predicted:       make(map[uint64]Input),
		firstIncorrect:  noFrame,
		cells:           make([]Cell, cfg.MaxPrediction+2),
		start:           now,
		lastReceived:    now,
		nextChecksum:    cfg.DesyncInterval,
		localChecksums:  make(map[uint64]uint64),
		remoteChecksums: make(map[uint64]uint64),
	}
	for f := 0; f < cfg.InputDelay; f++ {
		s.localInputs[uint64(f)] = BlankInput()
	}
	s.nextLocalFrame = uint64(cfg.InputDelay)
	s.sendSyncRequest(now)
	return s, nil
}

// LocalHandles reports the single local slot.
func (s *P2PSession) LocalHandles() []state.Handle {
	return []state.Handle{s.cfg.LocalHandle}
}

// CurrentFrame reports the frame the next advance simulates.
func (s *P2PSession) CurrentFrame() uint64 { return s.current }

// ConfirmedFrame reports how many leading frames have confirmed remote input.
func (s *P2PSession) ConfirmedFrame() uint64 { return s.nextRemote }

// Running reports whether the handshake has completed.
func (s *P2PSession) Running() bool { return s.phase == phaseRunning }

// AddLocalInput registers the local player's input for the next advance.
func (s *P2PSession) AddLocalInput(handle state.Handle, input Input) error {
	if handle != s.cfg.LocalHandle {
		return fmt.Errorf("%w: %d is not local", ErrInvalidHandle, handle)
	}
	if s.phase == phaseSyncing {
		return ErrNotSynchronized
	}
	in := input
	s.pendingLocal = &in
	return nil
}

// PollRemote drains the socket and services handshake, keep-alive, quality
// and timeout timers.
func (s *P2PSession) PollRemote() {
	now := s.clock.Now()
	for _, data := range s.socket.Receive() {
		p, err := decodePacket(data)
		if err != nil {
			s.malformed++
			continue
		}
		s.handle(p, now)
	}

	switch s.phase {
	case phaseSyncing:
		if now.Sub(s.lastSyncSent) >= s.cfg.SyncRetryInterval {
			s.sendSyncRequest(now)
		}
	case phaseRunning:
		if now.Sub(s.lastInputSent) >= s.cfg.KeepAliveInterval && s.nextLocalFrame > s.ackedByRemote {
			s.sendInputs(now)
		}
		if now.Sub(s.lastQuality) >= s.cfg.QualityReportInterval {
			s.lastQuality = now
			s.send(packet{
				kind:           kindQualityReport,
				frameAdvantage: s.lastLocalAdv,
				timestamp:      uint64(now.Sub(s.start)),
			}, now)
		}
		if now.Sub(s.lastSent) >= s.cfg.KeepAliveInterval {
			s.send(packet{kind: kindKeepAlive}, now)
		}
		s.checkTimeout(now)
	}
}

// AdvanceFrame records the pending local input, sends it, and returns the
// requests for this tick: a rollback (load then resimulate) when a
// misprediction was found, followed by a save and advance of the current
// frame.
func (s *P2PSession) AdvanceFrame() ([]Request, error) {
	if s.err != nil {
		return nil, s.err
	}
	switch s.phase {
	case phaseSyncing:
		return nil, ErrNotSynchronized
	case phaseRunning:
		if s.current >= s.nextRemote+uint64(s.cfg.MaxPrediction) {
			return nil, ErrPredictionThreshold
		}
	}

	now := s.clock.Now()
	target := s.current + uint64(s.cfg.InputDelay)
	if _, ok := s.localInputs[target]; !ok {
		in := BlankInput()
		if s.pendingLocal != nil {
			in = *s.pendingLocal
		}
		s.localInputs[target] = in
		s.nextLocalFrame = target + 1
	}
	s.pendingLocal = nil
	if s.phase == phaseRunning {
		s.sendInputs(now)
	}
	s.exchangeChecksums(now)

	var requests []Request
	if s.firstIncorrect != noFrame && s.firstIncorrect < s.current {
		rewind := s.firstIncorrect
		cell := s.cell(rewind)
		if saved, ok := cell.Frame(); !ok || saved != rewind {
			return nil, fmt.Errorf("rollback: no saved state for frame %d", rewind)
		}
		requests = append(requests, LoadState{Frame: rewind, Cell: cell})
		for f := rewind; f < s.current; f++ {
			if f > rewind {
				requests = append(requests, SaveState{Frame: f, Cell: s.cell(f)})
			}
			requests = append(requests, AdvanceFrame{Frame: f, Inputs: s.inputsFor(f)})
		}
	}
	s.firstIncorrect = noFrame

	requests = append(requests,
		SaveState{Frame: s.current, Cell: s.cell(s.current)},
		AdvanceFrame{Frame: s.current, Inputs: s.inputsFor(s.current)},
	)
	s.current++
	s.sampleAdvantage()
	s.prune()
	return requests, nil
}

// FramesAhead reports half the averaged frame advantage difference, so both
// peers meet in the middle.
func (s *P2PSession) FramesAhead() int {
	if s.phase != phaseRunning {
		return 0
	}
	var local, remote float64
	for i := range s.localAdvantage {
		local += float64(s.localAdvantage[i])
		remote += float64(s.remoteAdvantage[i])
	}
	local /= frameAdvantageWindow
	remote /= frameAdvantageWindow
	return int((remote - local) / 2)
}

// NetworkStats reports the link to the remote handle.
func (s *P2PSession) NetworkStats(handle state.Handle) (NetworkStats, error) {
	if handle != s.remote {
		return NetworkStats{}, fmt.Errorf("%w: %d is not remote", ErrInvalidHandle, handle)
	}
	if s.phase == phaseSyncing {
		return NetworkStats{}, ErrNotSynchronized
	}
	elapsed := s.clock.Now().Sub(s.start).Seconds()
	var kbps float64
	if elapsed > 0 {
		kbps = float64(s.bytesSent) * 8 / 1000 / elapsed
	}
	return NetworkStats{
		Ping:               s.rtt,
		SendQueueLen:       int(s.nextLocalFrame - min(s.ackedByRemote, s.nextLocalFrame)),
		KbpsSent:           kbps,
		LocalFramesBehind:  s.lastLocalAdv,
		RemoteFramesBehind: s.lastRemoteAdv,
	}, nil
}

// Events drains pending notifications.
func (s *P2PSession) Events() []SessionEvent {
	out := s.events
	s.events = nil
	return out
}

// MalformedPackets reports how many undecodable datagrams were dropped.
func (s *P2PSession) MalformedPackets() uint64 { return s.malformed }

// Close releases the socket.
func (s *P2PSession) Close() error {
	return s.socket.Close()
}

func (s *P2PSession) cell(f uint64) *Cell {
	return &s.cells[f%uint64(len(s.cells))]
}

func (s *P2PSession) inputsFor(f uint64) [state.PlayerCount]PlayerInput {
	var inputs [state.PlayerCount]PlayerInput
	inputs[s.cfg.LocalHandle] = PlayerInput{Input: s.localInputs[f], Status: Confirmed}
	switch {
	case f < s.nextRemote:
		inputs[s.remote] = PlayerInput{Input: s.remoteInputs[f], Status: Confirmed}
	case s.phase == phaseDisconnected:
		inputs[s.remote] = PlayerInput{Input: BlankInput(), Status: Disconnected}
	default:
		guess := BlankInput()
		s.predicted[f] = guess
		inputs[s.remote] = PlayerInput{Input: guess, Status: Predicted}
	}
	return inputs
}

func (s *P2PSession) handle(p packet, now time.Time) {
	s.lastReceived = now
	if s.interrupted {
		s.interrupted = false
		s.events = append(s.events, SessionEvent{Kind: EventNetworkResumed, Handle: s.remote})
	}

	switch p.kind {
	case kindSyncRequest:
		if p.configTag != s.cfg.ConfigTag {
			s.fail(fmt.Errorf("%w: local %016x, remote %016x", ErrConfigMismatch, s.cfg.ConfigTag, p.configTag))
			return
		}
		s.send(packet{kind: kindSyncReply, nonce: p.nonce, configTag: s.cfg.ConfigTag}, now)
	case kindSyncReply:
		if s.phase != phaseSyncing || p.nonce != s.syncNonce {
			return
		}
		if p.configTag != s.cfg.ConfigTag {
			s.fail(fmt.Errorf("%w: local %016x, remote %016x", ErrConfigMismatch, s.cfg.ConfigTag, p.configTag))
			return
		}
		s.syncRemaining--
		s.events = append(s.events, SessionEvent{
			Kind:   EventSynchronizing,
			Handle: s.remote,
			Count:  s.cfg.SyncRoundtrips - s.syncRemaining,
			Total:  s.cfg.SyncRoundtrips,
		})
		if s.syncRemaining > 0 {
			s.sendSyncRequest(now)
			return
		}
		s.phase = phaseRunning
		s.events = append(s.events, SessionEvent{Kind: EventSynchronized, Handle: s.remote})
	case kindInput:
		if s.phase != phaseRunning {
			return
		}
		s.acknowledge(p.ackFrame)
		s.receiveInputs(p.startFrame, p.inputs)
		s.send(packet{kind: kindInputAck, ackFrame: s.nextRemote}, now)
	case kindInputAck:
		s.acknowledge(p.ackFrame)
	case kindQualityReport:
		s.lastRemoteAdv = p.frameAdvantage
		s.send(packet{kind: kindQualityReply, timestamp: p.timestamp}, now)
	case kindQualityReply:
		sent := time.Duration(p.timestamp)
		if rtt := now.Sub(s.start) - sent; rtt >= 0 {
			s.rtt = rtt
		}
	case kindChecksum:
		s.remoteChecksums[p.frame] = p.checksum
		s.compareChecksum(p.frame)
	}
}

func (s *P2PSession) acknowledge(ack uint64) {
	if ack > s.ackedByRemote && ack <= s.nextLocalFrame {
		s.ackedByRemote = ack
	}
}

// receiveInputs accepts only the contiguous continuation of what has
// already been confirmed. A confirmed input for a frame that was simulated
// with a different prediction marks that frame for rollback.
func (s *P2PSession) receiveInputs(start uint64, inputs []Input) {
	for i, in := range inputs {
		f := start + uint64(i)
		if f < s.nextRemote {
			continue
		}
		if f > s.nextRemote {
			return
		}
		s.remoteInputs[f] = in
		s.nextRemote++
		if guess, ok := s.predicted[f]; ok {
			delete(s.predicted, f)
			if !guess.Equal(in) && f < s.firstIncorrect {
				s.firstIncorrect = f
			}
		}
	}
}

func (s *P2PSession) sendInputs(now time.Time) {
	first := s.ackedByRemote
	if first >= s.nextLocalFrame {
		return
	}
	last := s.nextLocalFrame
	if last-first > maxInputsPerPacket {
		last = first + maxInputsPerPacket
	}
	inputs := make([]Input, 0, last-first)
	for f := first; f < last; f++ {
		inputs = append(inputs, s.localInputs[f])
	}
	s.lastInputSent = now
	s.send(packet{kind: kindInput, startFrame: first, ackFrame: s.nextRemote, inputs: inputs}, now)
}

func (s *P2PSession) sendSyncRequest(now time.Time) {
	s.syncNonce = rand.Uint32()
	s.lastSyncSent = now
	s.send(packet{kind: kindSyncRequest, nonce: s.syncNonce, configTag: s.cfg.ConfigTag}, now)
}

func (s *P2PSession) send(p packet, now time.Time) {
	data := p.encode()
	if err := s.socket.Send(data); err != nil {
		return
	}
	s.bytesSent += uint64(len(data))
	s.lastSent = now
}

func (s *P2PSession) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *P2PSession) checkTimeout(now time.Time) {
	silent := now.Sub(s.lastReceived)
	if silent >= s.cfg.DisconnectTimeout {
		s.phase = phaseDisconnected
		s.events = append(s.events, SessionEvent{Kind: EventDisconnected, Handle: s.remote})
		return
	}
	if silent >= s.cfg.DisconnectNotifyStart && !s.interrupted {
		s.interrupted = true
		s.events = append(s.events, SessionEvent{
			Kind:    EventNetworkInterrupted,
			Handle:  s.remote,
			Timeout: s.cfg.DisconnectTimeout - silent,
		})
	}
}

// sampleAdvantage records how far the local simulation runs relative to the
// estimated remote frame.
func (s *P2PSession) sampleAdvantage() {
	pingFrames := int64(0)
	if s.cfg.FrameDuration > 0 {
		pingFrames = int64((s.rtt / 2) / s.cfg.FrameDuration)
	}
	remoteEstimate := int64(s.nextRemote) - int64(s.cfg.InputDelay) + pingFrames
	s.lastLocalAdv = int32(remoteEstimate - int64(s.current))
	slot := s.current % frameAdvantageWindow
	s.localAdvantage[slot] = s.lastLocalAdv
	s.remoteAdvantage[slot] = s.lastRemoteAdv
}

// exchangeChecksums publishes the fingerprint of every DesyncInterval-th
// frame once its state is fully confirmed and still held in a cell.
func (s *P2PSession) exchangeChecksums(now time.Time) {
	if s.cfg.DesyncInterval == 0 || s.firstIncorrect != noFrame {
		return
	}
	for s.nextChecksum <= s.nextRemote && s.nextChecksum < s.current {
		f := s.nextChecksum
		s.nextChecksum += s.cfg.DesyncInterval
		cell := s.cell(f)
		saved, ok := cell.Frame()
		if !ok || saved != f {
			continue
		}
		sum, _ := cell.Checksum()
		s.localChecksums[f] = sum
		s.send(packet{kind: kindChecksum, frame: f, checksum: sum}, now)
		s.compareChecksum(f)
	}
}

func (s *P2PSession) compareChecksum(f uint64) {
	local, ok := s.localChecksums[f]
	if !ok {
		return
	}
	remote, ok := s.remoteChecksums[f]
	if !ok {
		return
	}
	delete(s.localChecksums, f)
	delete(s.remoteChecksums, f)
	if local != remote {
		s.events = append(s.events, SessionEvent{
			Kind:           EventDesyncDetected,
			Handle:         s.remote,
			Frame:          f,
			LocalChecksum:  local,
			RemoteChecksum: remote,
		})
	}
}

func (s *P2PSession) prune() {
	keep := uint64(s.cfg.MaxPrediction + 2)
	if s.current <= keep {
		return
	}
	horizon := s.current - keep
	for f := range s.remoteInputs {
		if f < horizon {
			delete(s.remoteInputs, f)
		}
	}
	for f := range s.predicted {
		if f < horizon {
			delete(s.predicted, f)
		}
	}
	for f := range s.localInputs {
		if f < horizon && f < s.ackedByRemote {
			delete(s.localInputs, f)
		}
	}
	checksumHorizon := uint64(0)
	if span := s.cfg.DesyncInterval * checksumHistory; s.current > span {
		checksumHorizon = s.current - span
	}
	for f := range s.localChecksums {
		if f < checksumHorizon {
			delete(s.localChecksums, f)
		}
	}
	for f := range s.remoteChecksums {
		if f < checksumHorizon {
			delete(s.remoteChecksums, f)
		}
	}
}
