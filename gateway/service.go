package gateway

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/voxgate/voxgate/auth"
	"github.com/voxgate/voxgate/usage"
)

const shutdownTimeout = time.Second * 5

// Service is the HTTP surface of the gateway: websocket upgrades on
// /transcribe, usage reads on /api/usage, and a trivial healthcheck.
type Service struct {
	auth       auth.Resolver
	store      usage.Store
	registry   *Registry
	dispatcher *Dispatcher
	log        zerolog.Logger
	router     chi.Router

	shuttingDown atomic.Bool
}

func NewService(resolver auth.Resolver, store usage.Store, registry *Registry, dispatcher *Dispatcher, log *zerolog.Logger) *Service {
	s := &Service{
		auth:       resolver,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "gateway").Logger(),
	}
	router := chi.NewRouter()
	router.Get("/transcribe", s.handleTranscribe)
	router.Get("/api/usage", s.handleUsage)
	router.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.router = router
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve runs the gateway on listener until ctx is cancelled, then performs
// the shutdown sequence: stop accepting upgrades, close every live session
// with ShuttingDown, cancel the dispatcher and its in-flight tasks, close
// the listener, and return once everything has drained.
func (s *Service) Serve(ctx context.Context, listener net.Listener) error {
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()

	server := &http.Server{Handler: s.router}
	serverErrC := make(chan error, 1)
	go func() {
		serverErrC <- server.Serve(listener)
	}()
	dispatchDoneC := make(chan struct{})
	go func() {
		_ = s.dispatcher.Serve(dispatchCtx)
		close(dispatchDoneC)
	}()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("gateway listening")

	select {
	case err := <-serverErrC:
		cancelDispatch()
		<-dispatchDoneC
		return err
	case <-ctx.Done():
	}

	s.shuttingDown.Store(true)
	for _, session := range s.registry.Snapshot() {
		session.close(reasonShuttingDown)
		s.registry.Unregister(session)
	}
	cancelDispatch()
	<-dispatchDoneC

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
	}
	s.log.Info().Msg("gateway stopped")
	return nil
}

// handleTranscribe owns one upgraded connection. Admission runs concurrently
// with the read pump so a frame that arrives before the ready announcement
// is observed while the session is still not Ready.
func (s *Service) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeErrorResponse(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Debug().Msgf("websocket upgrade failed: %s", err)
		return
	}

	userID, err := s.auth.Resolve(r.Header.Get("Authorization"))
	if err != nil {
		reason := reasonUnauthorized
		observeSessionClose(reason.Code)
		_ = conn.Close(reason.Status, reason.encode())
		return
	}

	session := newSession(userID, conn, &s.log)
	incrementSessions()
	defer decrementActiveSessions()
	if evicted := s.registry.Register(session); evicted != nil {
		evicted.close(reasonReplaced)
	}
	session.log.Info().Msg("session registered")

	ctx := r.Context()
	go s.admit(ctx, session)
	s.readLoop(ctx, session)
}

// admit performs the one-time budget check and promotes the session to Ready
// or closes it.
func (s *Service) admit(ctx context.Context, session *Session) {
	record, err := s.store.GetUsage(ctx, session.UserID)
	if err != nil {
		session.log.Error().Msgf("admission lookup failed: %s", err)
		s.closeSession(session, reasonServerError(err))
		return
	}
	if record.RemainingMs <= 0 {
		s.closeSession(session, reasonExceeded)
		return
	}
	if session.closed() {
		// Evicted or torn down while the store call was in flight.
		return
	}
	session.markReady()
	if err := session.send(ctx, eventReady); err != nil {
		session.log.Debug().Msgf("ready announcement not delivered: %s", err)
		return
	}
	session.log.Debug().Int64("remainingMs", record.RemainingMs).Msg("session admitted")
}

// readLoop pumps inbound frames into the session's queue until the
// connection errors, the peer closes, or a protocol violation closes the
// session.
func (s *Service) readLoop(ctx context.Context, session *Session) {
	defer s.teardown(session)
	for {
		messageType, data, err := session.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				session.log.Debug().Int("status", int(status)).Msg("connection closed")
			} else if !session.closed() {
				session.log.Debug().Msgf("read failed: %s", err)
			}
			return
		}
		if !session.Ready() {
			s.closeSession(session, reasonNotReady)
			return
		}
		if messageType != websocket.MessageBinary {
			s.closeSession(session, reasonInvalidData)
			return
		}
		sequenceID, payload, err := decodeFrame(data)
		if err != nil {
			session.log.Debug().Msgf("rejecting frame: %s", err)
			s.closeSession(session, reasonInvalidData)
			return
		}
		session.queue.enqueue(workItem{
			sequenceID: sequenceID,
			payload:    payload,
			enqueuedAt: time.Now(),
		})
		s.dispatcher.Notify()
	}
}

// teardown runs when the read pump exits. It cancels in-flight work via the
// session's done channel and releases the registry slot unless a successor
// already owns it. The close-time drain may have run before the pump observed
// the close, so anything the pump enqueued after that drain is dead and is
// drained again here to keep the dropped-item count honest.
func (s *Service) teardown(session *Session) {
	session.terminate()
	s.registry.Unregister(session)
	discardWorkItems(session.queue.drain())
}

func (s *Service) closeSession(session *Session, reason CloseReason) {
	session.close(reason)
	s.registry.Unregister(session)
}

// handleUsage returns the caller's current usage record.
func (s *Service) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Resolve(r.Header.Get("Authorization"))
	if err != nil {
		writeUnauthorized(w)
		return
	}
	record, err := s.store.GetUsage(r.Context(), userID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.log.Debug().Msgf("encoding usage response: %s", err)
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}

type errorBody struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Message: message}})
}
