package server

import (
	"bufio"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/textmoor/textmoor/pkg/events"
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // Pre-login: awaiting connect/create
	ConnConnected                  // Logged in as a user
)

// outboundBuffer is the per-session event queue depth. A client that falls
// this far behind is dropped rather than allowed to stall delivery.
const outboundBuffer = 64

// Descriptor represents a single client connection. It implements
// events.Subscriber: delivery enqueues onto a buffered channel drained by a
// single writer goroutine, so a slow socket never blocks the broadcaster or
// the dispatch guards behind it.
type Descriptor struct {
	SessionID string
	Conn      net.Conn
	Reader    *bufio.Reader
	State     ConnState
	UserID    string
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time

	outbound chan events.Event
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor with a fresh session id
// and starts its writer goroutine.
func NewDescriptor(conn net.Conn) *Descriptor {
	now := time.Now()
	d := &Descriptor{
		SessionID: uuid.NewString(),
		Conn:      conn,
		Reader:    bufio.NewReaderSize(conn, 4096),
		State:     ConnLogin,
		Addr:      conn.RemoteAddr().String(),
		ConnTime:  now,
		LastCmd:   now,
		outbound:  make(chan events.Event, outboundBuffer),
		done:      make(chan struct{}),
	}
	go d.writeLoop()
	return d
}

// Send writes a line to the client connection.
func (d *Descriptor) Send(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// Ensure lines end with \r\n for telnet
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	d.Conn.Write([]byte(msg))
}

// writeLoop is the single consumer of the outbound queue.
func (d *Descriptor) writeLoop() {
	for {
		select {
		case ev := <-d.outbound:
			if ev.Text != "" {
				d.Send(ev.Text)
			}
		case <-d.done:
			return
		}
	}
}

// ReadLine reads one command line, honoring the idle timeout.
func (d *Descriptor) ReadLine(idle time.Duration) (string, error) {
	if idle > 0 {
		d.Conn.SetReadDeadline(time.Now().Add(idle))
	}
	line, err := d.Reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	d.LastCmd = time.Now()
	d.mu.Unlock()
	return strings.TrimRight(line, "\r\n"), nil
}

// Close shuts down the connection and stops the writer goroutine.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.done)
		d.Conn.Close()
	}
}

// Receive implements events.Subscriber. It never blocks: the event is
// enqueued for the writer goroutine, and a full queue closes the connection
// instead of stalling the caller.
func (d *Descriptor) Receive(ev events.Event) {
	if d.Closed() {
		return
	}
	select {
	case d.outbound <- ev:
	default:
		log.Printf("[%s] outbound queue full, dropping connection from %s", d.SessionID, d.Addr)
		d.Close()
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

var _ events.Subscriber = (*Descriptor)(nil)
