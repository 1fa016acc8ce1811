package mcphttp

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// exchangeState tracks one HTTP request/response cycle.
type exchangeState int32

const (
	stateIdle exchangeState = iota
	stateBodyReceived
	stateDispatched
	stateResponded
	stateClosed
)

func (s exchangeState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateBodyReceived:
		return "body_received"
	case stateDispatched:
		return "dispatched"
	case stateResponded:
		return "responded"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// notificationBuffer bounds server-initiated notifications queued while a
// tool call runs. They have no stream to go to and are dropped.
const notificationBuffer = 16

// ephemeralSession is the ClientSession handed to the MCP server for a single
// exchange. It has no id, so no session header is ever issued.
type ephemeralSession struct {
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool
}

func (s *ephemeralSession) SessionID() string { return "" }

func (s *ephemeralSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

func (s *ephemeralSession) Initialize() { s.initialized.Store(true) }

func (s *ephemeralSession) Initialized() bool { return s.initialized.Load() }

// exchange owns the per-request session and the goroutine draining its
// notifications. Close may be called from the request goroutine and from the
// connection-close callback; only the first call has an effect.
type exchange struct {
	id        string
	session   *ephemeralSession
	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newExchange(logger *slog.Logger) *exchange {
	ex := &exchange{
		id:      uuid.NewString(),
		session: &ephemeralSession{notifications: make(chan mcp.JSONRPCNotification, notificationBuffer)},
		done:    make(chan struct{}),
	}
	ex.logger = logger.With(slog.String("exchange_id", ex.id))
	go ex.drain()
	return ex
}

// drain discards notifications until the exchange closes. The channel itself
// is never closed so a late send from the server cannot panic.
func (ex *exchange) drain() {
	for {
		select {
		case n := <-ex.session.notifications:
			ex.logger.Debug("Dropping notification for stateless exchange", slog.String("method", n.Method))
		case <-ex.done:
			return
		}
	}
}

func (ex *exchange) State() exchangeState {
	return exchangeState(ex.state.Load())
}

// advance moves the exchange forward. Moving backwards or out of Closed is
// ignored.
func (ex *exchange) advance(to exchangeState) {
	for {
		cur := ex.state.Load()
		if exchangeState(cur) >= to {
			return
		}
		if ex.state.CompareAndSwap(cur, int32(to)) {
			ex.logger.Debug("Exchange state", slog.String("from", exchangeState(cur).String()), slog.String("to", to.String()))
			return
		}
	}
}

// Close releases the exchange resources exactly once.
func (ex *exchange) Close() {
	ex.closeOnce.Do(func() {
		ex.advance(stateClosed)
		close(ex.done)
		ex.logger.Debug("Exchange closed")
	})
}
