package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/tliron/commonlog"

	"github.com/chazu/marksweep/tracelog"
	"github.com/chazu/marksweep/vm"
)

var log = commonlog.GetLogger("marksweep.server")

// Server hosts VM sessions behind the Connect heap service.
type Server struct {
	sessions *SessionStore
	mux      *http.ServeMux
	http     *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	vmOptions []vm.Option
	recorder  *tracelog.Recorder
}

// WithVMOptions sets the options every session's VM is built with.
func WithVMOptions(opts ...vm.Option) ServerOption {
	return func(c *serverConfig) { c.vmOptions = append(c.vmOptions, opts...) }
}

// WithRecorder records every session's collection cycles, keyed by
// session id.
func WithRecorder(r *tracelog.Recorder) ServerOption {
	return func(c *serverConfig) { c.recorder = r }
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	newVM := func(id string) *vm.VM {
		vmOpts := append([]vm.Option(nil), cfg.vmOptions...)
		if cfg.recorder != nil {
			vmOpts = append(vmOpts, vm.WithObserver(cfg.recorder.Observer(id)))
		}
		v := vm.New(vmOpts...)
		log.Infof("session %s: %s heap", id, v.Strategy())
		return v
	}

	s := &Server{
		sessions: NewSessionStore(newVM),
		mux:      http.NewServeMux(),
	}

	path, handler := NewHeapServiceHandler(NewHeapService(s.sessions))
	s.mux.Handle(path, handler)

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe serves on addr until Stop is called.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.mux}
	log.Noticef("heap server listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s%s", addr, PushIntProcedure)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down the listener and closes every session.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	return errors.Join(err, s.sessions.DestroyAll(ctx))
}
