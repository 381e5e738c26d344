// Package fakepipe provides an in-memory pconn.Conn pair for tests that
// need to drive the handshake engine and the sender/receiver cores
// through an adversarial datagram schedule (loss, duplication,
// reordering, delay) without opening a real socket.
package fakepipe

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/datawire/relxfer/pkg/pconn"
)

var _ pconn.Conn = (*Conn)(nil)

// Addr is a trivial net.Addr implementation naming an endpoint.
type Addr string

func (a Addr) Network() string { return "fake" }
func (a Addr) String() string  { return string(a) }

// Medium is shared by a Conn pair and decides, via Hook, what happens to
// every datagram written by one side before it (maybe) reaches the
// other. A nil Hook delivers every datagram exactly once, immediately.
type Medium struct {
	// Hook is called once per WriteTo with the payload (already
	// copied — safe to retain) and must return one delay per copy
	// that should be delivered; a zero-length result drops the
	// datagram, and more than one delay duplicates it.
	Hook func(from, to Addr, payload []byte) []time.Duration
}

// NewMedium returns a Medium that delivers everything immediately and
// exactly once until Hook is set.
func NewMedium() *Medium { return &Medium{} }

// NewPair returns two Conns, named a and b, that exchange datagrams
// through m.
func (m *Medium) NewPair(a, b Addr) (*Conn, *Conn) {
	ca := &Conn{name: a, medium: m, inbox: make(chan []byte, 4096), closed: make(chan struct{})}
	cb := &Conn{name: b, medium: m, inbox: make(chan []byte, 4096), closed: make(chan struct{})}
	ca.peer, cb.peer = cb, ca
	return ca, cb
}

// Conn is one end of a fake datagram pipe.
type Conn struct {
	name   Addr
	peer   *Conn
	medium *Medium

	inbox  chan []byte
	closed chan struct{}

	mu           sync.Mutex
	readDeadline time.Time
}

func (c *Conn) WriteTo(p []byte, _ net.Addr) (int, error) {
	cp := append([]byte(nil), p...)
	delays := []time.Duration{0}
	if c.medium.Hook != nil {
		delays = c.medium.Hook(c.name, c.peer.name, cp)
	}
	for _, d := range delays {
		d := d
		deliver := func() {
			select {
			case c.peer.inbox <- cp:
			case <-c.peer.closed:
			}
		}
		if d <= 0 {
			deliver()
		} else {
			time.AfterFunc(d, deliver)
		}
	}
	return len(p), nil
}

func (c *Conn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	dl := c.readDeadline
	c.mu.Unlock()

	var timeoutCh <-chan time.Time
	if !dl.IsZero() {
		remaining := time.Until(dl)
		if remaining <= 0 {
			return 0, nil, timeoutError{}
		}
		t := time.NewTimer(remaining)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case data, ok := <-c.inbox:
		if !ok {
			return 0, nil, errors.New("fakepipe: closed")
		}
		n := copy(p, data)
		return n, c.peer.name, nil
	case <-timeoutCh:
		return 0, nil, timeoutError{}
	case <-c.closed:
		return 0, nil, errors.New("fakepipe: closed")
	}
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close() error {
	close(c.closed)
	return nil
}

func (c *Conn) LocalAddr() net.Addr { return c.name }

type timeoutError struct{}

func (timeoutError) Error() string   { return "fakepipe: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
