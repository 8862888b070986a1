package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/san-kum/bussim/internal/command"
	"github.com/san-kum/bussim/internal/sim"
)

const (
	APIVersion     = "v1"
	DefaultAddress = "127.0.0.1:8787"
	maxBodyBytes   = 1 << 16
)

// ServerOptions configures the HTTP server. Zero values get defaults.
type ServerOptions struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	// StreamFallback is the sampling interval used while refresh_rate is 0.
	StreamFallback time.Duration
	Logger         *log.Logger
}

type Server struct {
	http     *http.Server
	surface  *command.Surface
	hub      *Hub
	logger   *log.Logger
	opts     ServerOptions
	upgrader websocket.Upgrader
}

// NewServer constructs a server bound to surface. Nothing listens until Run.
func NewServer(surface *command.Surface, opts ServerOptions) *Server {
	if surface == nil {
		panic("api.NewServer: surface is nil")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.StreamFallback == 0 {
		opts.StreamFallback = sim.DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		surface: surface,
		hub:     NewHub(surface, opts.StreamFallback, opts.Logger),
		logger:  opts.Logger,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the desktop shell loads from its own scheme, not our origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/invoke/{command}", s.handleInvoke).Methods(http.MethodPost)
	v1 := r.PathPrefix("/" + APIVersion).Subrouter()
	v1.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	v1.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/buses/{id}/toggle", s.handleToggle).Methods(http.MethodPost)
	v1.HandleFunc("/speed", s.handleUpdate(command.UpdateSimulationSpeed)).Methods(http.MethodPut)
	v1.HandleFunc("/refresh-rate", s.handleUpdate(command.UpdateRefreshRate)).Methods(http.MethodPut)
	v1.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           withLogging(r, opts.Logger),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          opts.Logger,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }
func (s *Server) Hub() *Hub             { return s.hub }
func (s *Server) Addr() string          { return s.http.Addr }

// Run serves until ctx is done, then shuts down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Printf("api: listening on %s", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Printf("api: stopped")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["command"]
	args, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.surface.Invoke(name, args)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.surface.GetGlobalState()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, state)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	args, _ := json.Marshal(map[string]string{"busId": mux.Vars(r)["id"]})
	if _, err := s.surface.Invoke(command.ToggleBus, args); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := s.surface.Invoke(name, args); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Printf("api: stream upgrade: %v", err)
		return
	}
	c := newClientConn(s.hub, conn)
	if !s.hub.register(c) {
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, command.ErrBadArguments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func withLogging(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusBadRequest {
			logger.Printf("api: %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
		}
	})
}
