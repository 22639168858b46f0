package gateway

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/voxgate/voxgate/transcriber"
)

var noopLogger = zerolog.New(io.Discard)

const testReadTimeout = time.Second * 5

// fakeTranscriber lets each test script the engine's behavior.
type fakeTranscriber struct {
	transcribe func(ctx context.Context, payload []byte) (transcriber.Result, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, payload []byte) (transcriber.Result, error) {
	return f.transcribe(ctx, payload)
}

// instantTranscriber charges the exact cost model without pacing.
func instantTranscriber() *fakeTranscriber {
	engine := &transcriber.Simulated{}
	return &fakeTranscriber{transcribe: engine.Transcribe}
}

// wsPipe creates an in-memory client/server websocket pair, in the vein of
// net.Pipe.
func wsPipe(t *testing.T) (clientConn, serverConn *websocket.Conn) {
	t.Helper()
	transport := pipeTransport{
		handler: func(w http.ResponseWriter, r *http.Request) {
			serverConn, _ = websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		},
	}
	clientConn, _, err := websocket.Dial(context.Background(), "ws://gateway.test", &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)
	require.NotNil(t, serverConn)
	return clientConn, serverConn
}

type pipeTransport struct {
	handler http.HandlerFunc
}

func (p pipeTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clientConn, serverConn := net.Pipe()
	hijacker := pipeHijacker{
		ResponseRecorder: httptest.NewRecorder(),
		serverConn:       serverConn,
	}
	p.handler.ServeHTTP(hijacker, r)
	resp := hijacker.ResponseRecorder.Result()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		resp.Body = clientConn
	}
	return resp, nil
}

type pipeHijacker struct {
	*httptest.ResponseRecorder
	serverConn net.Conn
}

var _ http.Hijacker = pipeHijacker{}

func (h pipeHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.serverConn, bufio.NewReadWriter(bufio.NewReader(h.serverConn), bufio.NewWriter(h.serverConn)), nil
}

// newTestSession builds a Ready session backed by an in-memory websocket and
// returns the client side for observing replies and close frames.
func newTestSession(t *testing.T, userID string) (*Session, *websocket.Conn) {
	t.Helper()
	clientConn, serverConn := wsPipe(t)
	session := newSession(userID, serverConn, &noopLogger)
	session.markReady()
	return session, clientConn
}

func readReply(t *testing.T, conn *websocket.Conn) transcriptionReply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testReadTimeout)
	defer cancel()
	messageType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, messageType)
	var reply transcriptionReply
	require.NoError(t, json.Unmarshal(data, &reply))
	return reply
}

func readReady(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testReadTimeout)
	defer cancel()
	messageType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, messageType)
	var event readyEvent
	require.NoError(t, json.Unmarshal(data, &event))
	require.Equal(t, "ready", event.Event)
}

func expectClose(t *testing.T, conn *websocket.Conn, status websocket.StatusCode, code ErrorCode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testReadTimeout)
	defer cancel()
	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			// Skip frames delivered before the close, e.g. a late reply.
			continue
		}
		var closeErr websocket.CloseError
		require.ErrorAs(t, err, &closeErr, "expected a close frame")
		require.Equal(t, status, closeErr.Code)
		payload, perr := DecodeClosePayload(closeErr.Reason)
		require.NoError(t, perr)
		require.Equal(t, code, payload.Code)
		return
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}
