// Package obstest runs an in-process obs-websocket v5 server for tests.
package obstest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/obskey/internal/obs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type failure struct {
	code    int
	comment string
}

// Server fakes the subset of OBS used by obskey: versions and program scenes.
type Server struct {
	srv        *httptest.Server
	password   string
	rpcVersion int

	mu        sync.Mutex
	current   string
	scenes    []string
	failures  map[string]failure
	requests  []string
	conns     map[*websocket.Conn]struct{}
	sessions  int
	challenge string
	salt      string
}

// Option configures a Server.
type Option func(*Server)

// WithPassword makes the server demand authentication.
func WithPassword(password string) Option {
	return func(s *Server) { s.password = password }
}

// WithRPCVersion sets the newest RPC version the server speaks.
func WithRPCVersion(v int) Option {
	return func(s *Server) { s.rpcVersion = v }
}

// WithScenes sets the scene list and the scene on program.
func WithScenes(current string, scenes ...string) Option {
	return func(s *Server) {
		s.current = current
		s.scenes = append([]string(nil), scenes...)
		if !slices.Contains(s.scenes, current) {
			s.scenes = append(s.scenes, current)
		}
	}
}

// NewServer starts a fake server that is shut down when the test ends.
// Without WithScenes it has "Gameplay" on program and a "SAFE" scene.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		rpcVersion: obs.RPCVersion,
		current:    "Gameplay",
		scenes:     []string{"Gameplay", "SAFE"},
		failures:   make(map[string]failure),
		conns:      make(map[*websocket.Conn]struct{}),
		challenge:  "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=",
		salt:       "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.Close)
	return s
}

// Host returns the listener host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Options returns dial options for this server, using its password.
func (s *Server) Options() obs.Options {
	return obs.Options{Host: s.Host(), Port: s.Port(), Password: s.password}
}

// CurrentScene returns the scene on program.
func (s *Server) CurrentScene() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrentScene changes the scene on program, as an operator would.
func (s *Server) SetCurrentScene(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = name
}

// FailRequest makes every later requestType call fail with code.
func (s *Server) FailRequest(requestType string, code int, comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[requestType] = failure{code: code, comment: comment}
}

// Requests returns the request types received, in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Sessions returns how many clients completed the handshake.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// DropConnections closes every open session abruptly.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Close stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if !s.handshake(conn) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg obs.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Op != obs.OpRequest {
			continue
		}
		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		if err := json.Unmarshal(msg.D, &req); err != nil {
			continue
		}

		resp := s.handle(req.RequestType, req.RequestData)
		resp.RequestType = req.RequestType
		resp.RequestID = req.RequestID
		frame, err := obs.Encode(obs.OpRequestResponse, resp)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) bool {
	hello := obs.Hello{ObsWebSocketVersion: "5.5.0", RPCVersion: s.rpcVersion}
	if s.password != "" {
		hello.Authentication = &obs.AuthChallenge{Challenge: s.challenge, Salt: s.salt}
	}
	frame, _ := obs.Encode(obs.OpHello, hello)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return false
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var msg obs.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Op != obs.OpIdentify {
		return false
	}
	var ident obs.Identify
	if err := json.Unmarshal(msg.D, &ident); err != nil {
		return false
	}

	if s.password != "" {
		want := obs.AuthResponse(s.password, *hello.Authentication)
		if ident.Authentication != want {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(obs.CloseAuthenticationFailed, "Authentication failed."),
				deadline())
			return false
		}
	}

	if ident.RPCVersion > s.rpcVersion {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(obs.CloseUnsupportedRPC, "RPC version not supported."),
			deadline())
		return false
	}

	frame, _ = obs.Encode(obs.OpIdentified, obs.Identified{NegotiatedRPCVersion: ident.RPCVersion})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return false
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()
	return true
}

func (s *Server) handle(requestType string, data json.RawMessage) obs.RequestResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, requestType)

	if f, ok := s.failures[requestType]; ok {
		return failed(f.code, f.comment)
	}

	switch requestType {
	case "GetVersion":
		return succeeded(map[string]any{
			"obsVersion":          "30.2.0",
			"obsWebSocketVersion": "5.5.0",
			"rpcVersion":          obs.RPCVersion,
			"platform":            "linux",
			"platformDescription": "fake",
			"availableRequests":   []string{"GetVersion", "GetCurrentProgramScene", "SetCurrentProgramScene", "GetSceneList"},
		})
	case "GetCurrentProgramScene":
		return succeeded(map[string]string{
			"currentProgramSceneName": s.current,
			"sceneName":               s.current,
		})
	case "SetCurrentProgramScene":
		var req struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.SceneName) == "" {
			return failed(300, "Your request is missing the sceneName field.")
		}
		if !slices.Contains(s.scenes, req.SceneName) {
			return failed(obs.StatusResourceNotFound, fmt.Sprintf("No source was found by the name of `%s`.", req.SceneName))
		}
		s.current = req.SceneName
		return succeeded(nil)
	case "GetSceneList":
		scenes := make([]map[string]any, 0, len(s.scenes))
		for i, name := range s.scenes {
			scenes = append(scenes, map[string]any{"sceneName": name, "sceneIndex": i})
		}
		return succeeded(map[string]any{"currentProgramSceneName": s.current, "scenes": scenes})
	default:
		return failed(obs.StatusUnknownRequestType, "Your request type is not valid.")
	}
}

func succeeded(data any) obs.RequestResponse {
	resp := obs.RequestResponse{RequestStatus: obs.RequestStatus{Result: true, Code: obs.StatusSuccess}}
	if data != nil {
		raw, _ := json.Marshal(data)
		resp.ResponseData = raw
	}
	return resp
}

func deadline() time.Time { return time.Now().Add(time.Second) }

func failed(code int, comment string) obs.RequestResponse {
	return obs.RequestResponse{RequestStatus: obs.RequestStatus{Code: code, Comment: comment}}
}
