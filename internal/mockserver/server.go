// Package mockserver is an in-memory stand-in for the phonemulator
// backend. It serves the account and LLM routes, and broadcasts a log
// record for every request and response to /ws/logs subscribers.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Options configure a Server. The zero value serves echo answers and logs
// to the standard logger.
type Options struct {
	// OllamaURL is the Ollama base URL, e.g. http://localhost:11434. When
	// empty, /llm/generate echoes the prompt.
	OllamaURL string
	Model     string
	Timeout   time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

type Server struct {
	mu    sync.RWMutex
	users map[string]string // username → password

	hub    *Hub
	llm    *ollama
	logger *log.Logger
	now    func() time.Time
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		users:  make(map[string]string),
		hub:    NewHub(opts.Logger),
		logger: opts.Logger,
		now:    opts.Now,
	}
	if opts.OllamaURL != "" {
		s.llm = newOllama(opts.OllamaURL, opts.Model, opts.Timeout)
	}
	return s
}

// Hub returns the log broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/ws/logs", s.handleWS)
	r.HandleFunc("/register/", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/user/{username}/", s.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/user/{username}/", s.handleUpdatePassword).Methods(http.MethodPut)
	r.HandleFunc("/llm/generate", s.handleGenerate).Methods(http.MethodPost)
	return cors(r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade error: %v", err)
		return
	}

	s.logger.Printf("WebSocket client connected: %s", r.RemoteAddr)
	sub := s.hub.Add(conn)
	defer func() {
		s.hub.Remove(sub)
		s.logger.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// exchange logs one request/response pair to the hub.
type exchange struct {
	s         *Server
	method    string
	url       string
	requestID string
}

func (s *Server) begin(r *http.Request) *exchange {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	return &exchange{s: s, method: r.Method, url: r.URL.Path, requestID: id}
}

func (x *exchange) emit(rec Record) {
	rec.RequestID = x.requestID
	x.s.hub.Broadcast(stamp(rec, x.s.now()))
}

func (x *exchange) request(payload any) {
	x.emit(Record{Source: SourceClientRequest, Method: x.method, URL: x.url, RequestPayload: payload})
}

func (x *exchange) reply(w http.ResponseWriter, status int, payload any) {
	x.emit(Record{Source: SourceServerResponse, Method: x.method, URL: x.url, Status: status, ResponsePayload: payload})
	writeJSON(w, status, payload)
}

func (x *exchange) fail(w http.ResponseWriter, status int, msg string) {
	x.reply(w, status, detail{Detail: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fieldError mirrors one entry of a request validation failure.
type fieldError struct {
	Type string   `json:"type"`
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
}

// field names a required body member after decoding.
type field struct {
	name  string
	value *string
}

// decode reads a JSON body into v and checks that every required field
// was present. On failure the 422 reply has already been written.
func (x *exchange) decode(w http.ResponseWriter, r *http.Request, v any, required func() []field) bool {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		x.request(nil)
		x.reply(w, http.StatusUnprocessableEntity, detail{Detail: []fieldError{
			{Type: "json_invalid", Loc: []string{"body"}, Msg: "JSON decode error"},
		}})
		return false
	}
	var missing []fieldError
	for _, f := range required() {
		if f.value == nil {
			missing = append(missing, fieldError{Type: "missing", Loc: []string{"body", f.name}, Msg: "Field required"})
		}
	}
	if len(missing) > 0 {
		x.request(nil)
		x.reply(w, http.StatusUnprocessableEntity, detail{Detail: missing})
		return false
	}
	return true
}

type credentials struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (c *credentials) required() []field {
	return []field{{"username", c.Username}, {"password", c.Password}}
}

type passwordUpdate struct {
	Password *string `json:"password"`
}

type promptBody struct {
	Username *string `json:"username"`
	Prompt   *string `json:"prompt"`
}

// pathUser returns the unescaped {username} route variable.
func pathUser(r *http.Request) string {
	raw := mux.Vars(r)["username"]
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	x := s.begin(r)
	var in credentials
	if !x.decode(w, r, &in, in.required) {
		return
	}
	x.request(map[string]string{"username": *in.Username})

	s.mu.Lock()
	_, exists := s.users[*in.Username]
	if !exists {
		s.users[*in.Username] = *in.Password
	}
	s.mu.Unlock()

	if exists {
		x.fail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	x.reply(w, http.StatusOK, message{Status: "success", Message: fmt.Sprintf("User '%s' registered", *in.Username)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	x := s.begin(r)
	var in credentials
	if !x.decode(w, r, &in, in.required) {
		return
	}
	x.request(map[string]string{"username": *in.Username})

	s.mu.RLock()
	stored, ok := s.users[*in.Username]
	s.mu.RUnlock()

	if !ok || stored != *in.Password {
		x.fail(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	x.reply(w, http.StatusOK, message{Status: "success", Message: fmt.Sprintf("User '%s' logged in", *in.Username)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	x := s.begin(r)
	username := pathUser(r)
	x.request(nil)

	if !s.exists(username) {
		x.fail(w, http.StatusNotFound, "User not found")
		return
	}
	x.reply(w, http.StatusOK, map[string]string{"username": username})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	x := s.begin(r)
	username := pathUser(r)
	var in passwordUpdate
	if !x.decode(w, r, &in, func() []field { return []field{{"password", in.Password}} }) {
		return
	}
	x.request(map[string]string{"username": username})

	s.mu.Lock()
	_, ok := s.users[username]
	if ok {
		s.users[username] = *in.Password
	}
	s.mu.Unlock()

	if !ok {
		x.fail(w, http.StatusNotFound, "User not found")
		return
	}
	x.reply(w, http.StatusOK, message{Status: "success", Message: fmt.Sprintf("Password for user '%s' updated", username)})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	x := s.begin(r)
	var in promptBody
	if !x.decode(w, r, &in, func() []field { return []field{{"username", in.Username}, {"prompt", in.Prompt}} }) {
		return
	}
	x.request(map[string]string{"username": *in.Username, "prompt": *in.Prompt})

	if !s.exists(*in.Username) {
		x.fail(w, http.StatusUnauthorized, "User not found or not authenticated")
		return
	}

	if s.llm == nil {
		x.reply(w, http.StatusOK, map[string]string{"text": "Echo: " + *in.Prompt})
		return
	}

	text, err := s.llm.generate(r.Context(), *in.Prompt, x.emit)
	var uerr *upstreamError
	var serr *statusError
	switch {
	case err == nil:
		x.reply(w, http.StatusOK, map[string]string{"text": text})
	case errors.As(err, &uerr):
		s.logger.Print(err)
		x.fail(w, http.StatusServiceUnavailable, "LLM service unavailable")
	case errors.As(err, &serr):
		s.logger.Print(err)
		x.fail(w, http.StatusBadGateway, "Error from LLM service")
	default:
		msg := fmt.Sprintf("Unexpected error during LLM generation: %v", err)
		s.logger.Print(msg)
		x.emit(Record{Source: SourceServerError, Method: x.method, URL: x.url, Detail: msg})
		x.fail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}
