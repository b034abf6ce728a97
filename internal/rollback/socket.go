package rollback

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// maxDatagram is large enough for a full input packet.
const maxDatagram = 2048

// Socket carries datagrams to and from the single remote peer.
type Socket interface {
	// Send transmits one datagram. Delivery is not guaranteed.
	Send(data []byte) error
	// Receive drains every datagram that has arrived, without blocking.
	Receive() [][]byte
	Close() error
}

// UDPSocket is a Socket bound to a local UDP port and talking to one remote
// address. A reader goroutine moves datagrams into a bounded queue; when the
// queue is full new datagrams are dropped, as the network would.
type UDPSocket struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	inbox   chan []byte
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
	foreign atomic.Uint64
}

// ListenUDP binds localPort on all interfaces and targets remote.
func ListenUDP(localPort int, remote *net.UDPAddr) (*UDPSocket, error) {
	if remote == nil {
		return nil, errors.New("rollback: remote address is required")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("bind udp port %d: %w", localPort, err)
	}
	s := &UDPSocket{
		conn:   conn,
		remote: remote,
		inbox:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// LocalAddr reports the bound address.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send writes data to the remote peer.
func (s *UDPSocket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	_, err := s.conn.WriteToUDP(data, s.remote)
	return err
}

// Receive drains queued datagrams.
func (s *UDPSocket) Receive() [][]byte {
	var out [][]byte
	for {
		select {
		case data := <-s.inbox:
			out = append(out, data)
		default:
			return out
		}
	}
}

// Dropped reports datagrams discarded because the queue was full.
func (s *UDPSocket) Dropped() uint64 {
	return s.dropped.Load()
}

// Foreign reports datagrams ignored because they came from another address.
func (s *UDPSocket) Foreign() uint64 {
	return s.foreign.Load()
}

// Close stops the reader and releases the port.
func (s *UDPSocket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *UDPSocket) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if !from.IP.Equal(s.remote.IP) || from.Port != s.remote.Port {
			s.foreign.Add(1)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.inbox <- data:
		default:
			s.dropped.Add(1)
		}
	}
}

// MemorySocket is an in-process Socket, used to connect two sessions in
// tests without touching the network.
type MemorySocket struct {
	mu     sync.Mutex
	peer   *MemorySocket
	inbox  [][]byte
	closed bool
	// Drop, when set, decides whether an outgoing datagram is lost.
	Drop func(data []byte) bool
}

// NewMemoryPair returns two sockets wired to each other.
func NewMemoryPair() (*MemorySocket, *MemorySocket) {
	a, b := &MemorySocket{}, &MemorySocket{}
	a.peer, b.peer = b, a
	return a, b
}

// Send delivers a copy of data to the peer.
func (s *MemorySocket) Send(data []byte) error {
	s.mu.Lock()
	closed, drop := s.closed, s.Drop
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if drop != nil && drop(data) {
		return nil
	}
	copied := append([]byte(nil), data...)
	s.peer.mu.Lock()
	defer s.peer.mu.Unlock()
	if !s.peer.closed {
		s.peer.inbox = append(s.peer.inbox, copied)
	}
	return nil
}

// Receive drains delivered datagrams.
func (s *MemorySocket) Receive() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.inbox
	s.inbox = nil
	return out
}

// Close stops delivery in both directions for this end.
func (s *MemorySocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.inbox = nil
	return nil
}
