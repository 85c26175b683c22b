package socket

import (
	"bytes"
	"sync"
)

// State is the monotonic lifecycle of a Socket (spec §4.4): it may
// only advance pending → established → closing → closed, and
// established may be skipped if the socket closes before its first
// writable notification.
type State int

const (
	Pending State = iota
	Established
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Established:
		return "established"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks are the virtual I/O and lifecycle hooks every concrete
// socket variant installs. Each is optional; a nil hook is a no-op.
type Callbacks struct {
	OnReadable   func(s *Base)
	OnWritable   func(s *Base)
	OnOOBReadable func(s *Base)
	OnClosed     func(s *Base)
}

// Base is the common state every connection-oriented socket derives
// from: one non-blocking fd, a state machine, growable read/write
// queues under a per-socket lock, and a throttle flag mirroring
// whether the driver's readiness set currently suppresses read
// notifications for this socket.
type Base struct {
	FD   int
	Peer Address
	Name string // protocol, e.g. "tcp", "udp", "tls", "http", "ws"

	callbacks Callbacks

	mu         sync.Mutex
	state      State
	readQueue  bytes.Buffer
	writeQueue bytes.Buffer
	throttled  bool

	// driver is the back reference installed once the socket is
	// registered with a network driver; nil before registration.
	driver any
}

// NewBase constructs a pending socket wrapping fd.
func NewBase(fd int, peer Address, name string, cb Callbacks) *Base {
	return &Base{FD: fd, Peer: peer, Name: name, callbacks: cb, state: Pending}
}

// SetCallbacks replaces the socket's hooks. Used when a caller needs
// per-connection state (not known until after Accept/DialTCP returns)
// wired into the hooks, rather than passed in at construction time.
func (s *Base) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Base) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetDriver installs the back reference to whatever network driver
// the socket is registered with.
func (s *Base) SetDriver(d any) {
	s.mu.Lock()
	s.driver = d
	s.mu.Unlock()
}

// Driver returns the back reference installed by SetDriver, or nil.
func (s *Base) Driver() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

// advance moves state forward, refusing to go backward or skip past
// Closed. Returns false if the transition was rejected.
func (s *Base) advance(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed || next < s.state {
		return false
	}
	s.state = next
	return true
}

// MarkEstablished promotes Pending to Established. It is a no-op if
// the socket has already advanced past Pending (e.g. closed first).
func (s *Base) MarkEstablished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending {
		return false
	}
	s.state = Established
	return true
}

// MarkClosing moves the socket to Closing, unless it is already Closed.
func (s *Base) MarkClosing() bool {
	return s.advance(Closing)
}

// MarkClosed moves the socket to Closed and fires OnClosed exactly
// once, regardless of how many times MarkClosed is called.
func (s *Base) MarkClosed() {
	s.mu.Lock()
	already := s.state == Closed
	s.state = Closed
	s.mu.Unlock()

	if !already && s.callbacks.OnClosed != nil {
		s.callbacks.OnClosed(s)
	}
}

// Throttled reports whether read notifications are currently
// suppressed for this socket.
func (s *Base) Throttled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttled
}

// SetThrottled updates the throttle flag. The driver is responsible
// for acting on the change (re-arming or suppressing EPOLLIN).
func (s *Base) SetThrottled(v bool) {
	s.mu.Lock()
	s.throttled = v
	s.mu.Unlock()
}

// AppendRead appends bytes read from the fd to the read queue. It takes
// the socket lock itself, so any thread may call it as long as that
// thread does not already hold the lock; in practice only the network
// thread does.
func (s *Base) AppendRead(p []byte) {
	s.mu.Lock()
	s.readQueue.Write(p)
	s.mu.Unlock()
}

// DrainRead removes and returns all currently buffered read bytes,
// leaving any unconsumed prefix for the next round when the caller
// writes back a tail via UnreadPrefix.
func (s *Base) DrainRead() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := append([]byte(nil), s.readQueue.Bytes()...)
	s.readQueue.Reset()
	return b
}

// UnreadPrefix restores bytes a protocol parser could not consume
// this round so they are seen again on the next read round.
func (s *Base) UnreadPrefix(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rest bytes.Buffer
	rest.Write(p)
	rest.Write(s.readQueue.Bytes())
	s.readQueue = rest
}

// Write appends bytes to the send queue. Any thread may call this
// under the per-socket lock (spec §4.4); only the network thread
// drains it.
func (s *Base) Write(p []byte) {
	s.mu.Lock()
	s.writeQueue.Write(p)
	s.mu.Unlock()
}

// PendingWrite reports how many bytes are queued to send.
func (s *Base) PendingWrite() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeQueue.Len()
}

// PeekWrite returns the currently queued send bytes without consuming
// them, for a driver to attempt a non-blocking write.
func (s *Base) PeekWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.writeQueue.Bytes()...)
}

// ConsumeWrite removes n bytes from the front of the send queue after
// a successful write of that many bytes.
func (s *Base) ConsumeWrite(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeQueue.Next(n)
}

// Send performs the send path (spec §4.4): queue p, then attempt an
// opportunistic write of the whole queue right now. Never blocks —
// whatever the fd would not accept stays queued for the driver's next
// OnWritable notification to drain via FlushWrite. Only a real write
// error (not a would-block) is returned.
func (s *Base) Send(p []byte) error {
	s.Write(p)
	return s.FlushWrite()
}

// FlushWrite drains as much of the send queue as the fd accepts right
// now (spec §4.4's writable path), the method a socket's OnWritable
// hook should call. network.Driver already calls it automatically
// whenever EPOLLOUT fires, so callers normally only need Send; a
// custom driver or transport wrapping Base directly should call
// FlushWrite from its own writable notification. A would-block leaves
// the remainder queued instead of returning an error.
func (s *Base) FlushWrite() error {
	for {
		pending := s.PeekWrite()
		if len(pending) == 0 {
			return nil
		}
		n, err := s.WriteFrom(pending)
		if n > 0 {
			s.ConsumeWrite(n)
		}
		if err != nil {
			if IsWouldBlock(err) {
				return nil
			}
			return err
		}
	}
}

// FireReadable invokes the readable callback.
func (s *Base) FireReadable() {
	if s.callbacks.OnReadable != nil {
		s.callbacks.OnReadable(s)
	}
}

// FireWritable invokes the writable callback.
func (s *Base) FireWritable() {
	if s.callbacks.OnWritable != nil {
		s.callbacks.OnWritable(s)
	}
}

// FireOOBReadable invokes the out-of-band readable callback.
func (s *Base) FireOOBReadable() {
	if s.callbacks.OnOOBReadable != nil {
		s.callbacks.OnOOBReadable(s)
	}
}
