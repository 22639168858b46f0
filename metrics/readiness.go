package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// ReadyServer serves HTTP 200 once the gateway listener is accepting
// connections and the process is not shutting down. Intended for k8s
// readiness checks.
type ReadyServer struct {
	ready atomic.Bool
}

func NewReadyServer() *ReadyServer {
	return &ReadyServer{}
}

func (rs *ReadyServer) SetReady(ready bool) {
	rs.ready.Store(ready)
}

type body struct {
	Status int `json:"status"`
}

func (rs *ReadyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	statusCode := http.StatusServiceUnavailable
	if rs.ready.Load() {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)
	msg, err := json.Marshal(body{Status: statusCode})
	if err != nil {
		fmt.Fprintf(w, `{"error": "%s"}`, err)
		return
	}
	_, _ = w.Write(msg)
}
