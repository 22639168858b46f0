package gateway

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

var (
	// LogFieldSessionID tags every log event of one upgraded connection.
	LogFieldSessionID = "sessionID"
	LogFieldUserID    = "userID"

	errSessionClosed = errors.New("session closed")
)

func formatSessionID(sessionID uuid.UUID) string {
	return strings.ReplaceAll(sessionID.String(), "-", "")
}

// Session is one authenticated, upgraded connection. Its lifecycle is
// Unauthenticated -> Admitting -> Ready -> Closing; ready flips on after
// admission and off forever once the session starts closing.
//
// ID is the instance identity: the registry's compare-and-remove keys on it
// so a late-closing predecessor can never unregister its successor.
type Session struct {
	ID     uuid.UUID
	UserID string

	conn  *websocket.Conn
	log   zerolog.Logger
	queue *packetQueue

	ready     atomic.Bool
	closeOnce sync.Once
	doneC     chan struct{}
}

func newSession(userID string, conn *websocket.Conn, log *zerolog.Logger) *Session {
	id := uuid.New()
	logger := log.With().
		Str(LogFieldSessionID, formatSessionID(id)).
		Str(LogFieldUserID, userID).
		Logger()
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		log:    logger,
		queue:  newPacketQueue(),
		doneC:  make(chan struct{}),
	}
}

// Done is closed when the session enters Closing. In-flight work for this
// user derives its cancellation from it.
func (s *Session) Done() <-chan struct{} {
	return s.doneC
}

func (s *Session) Ready() bool {
	return s.ready.Load()
}

func (s *Session) markReady() {
	s.ready.Store(true)
}

func (s *Session) closed() bool {
	select {
	case <-s.doneC:
		return true
	default:
		return false
	}
}

// send marshals v and writes it as a text frame. No frames are sent once the
// session has started closing.
func (s *Session) send(ctx context.Context, v interface{}) error {
	if s.closed() {
		return errSessionClosed
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal outbound event")
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// close transitions the session to Closing and delivers the close frame with
// the structured reason. Subsequent calls are no-ops, so every failure path
// can call it without coordination.
func (s *Session) close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		close(s.doneC)
		discardWorkItems(s.queue.drain())
		observeSessionClose(reason.Code)
		s.log.Debug().
			Int("status", int(reason.Status)).
			Str("reason", reason.Code.String()).
			Msg("closing session")
		if err := s.conn.Close(reason.Status, reason.encode()); err != nil {
			s.log.Debug().Msgf("close frame not delivered: %s", err)
		}
	})
}

// terminate tears the session down without emitting a close frame, for when
// the peer closed first or the socket already failed.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		close(s.doneC)
		discardWorkItems(s.queue.drain())
		s.log.Debug().Msg("session terminated")
	})
}
