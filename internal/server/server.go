// Package server runs the HTTP listener and the background loops that feed it,
// and shuts both down in a fixed order.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases a component (pool, client, connection).
type ShutdownFunc func(ctx context.Context) error

// WorkerFunc is a background loop. It must return once ctx is cancelled.
type WorkerFunc func(ctx context.Context) error

// Options configures the HTTP listener.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type task[F any] struct {
	name string
	fn   F
}

// Server owns the listener, the registered workers and the shutdown hooks.
type Server struct {
	http   *http.Server
	grace  time.Duration
	logger *slog.Logger
	ready  chan struct{}

	mu      sync.Mutex
	ln      net.Listener
	workers []task[WorkerFunc]
	hooks   []task[ShutdownFunc]
}

func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(opts.Port)),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		},
		grace:  opts.ShutdownTimeout,
		logger: logger.With("component", "server"),
		ready:  make(chan struct{}),
	}
}

// Go registers a worker started by Run. Workers outlive the listener: they
// are cancelled only after in-flight requests drain.
func (s *Server) Go(name string, fn WorkerFunc) {
	s.mu.Lock()
	s.workers = append(s.workers, task[WorkerFunc]{name, fn})
	s.mu.Unlock()
}

// OnShutdown registers a hook. Hooks run last-registered first, after every
// worker has returned.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	s.hooks = append(s.hooks, task[ShutdownFunc]{name, fn})
	s.mu.Unlock()
}

// Run binds the listener, starts the workers and serves until ctx ends or
// SIGINT/SIGTERM arrives. It returns the serve error, or else the first hook
// error.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	workers := append([]task[WorkerFunc](nil), s.workers...)
	s.mu.Unlock()
	close(s.ready)

	// Workers must not see the signal before the listener drains.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	stopped := s.startWorkers(workerCtx, workers)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	deadline, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	s.drain(deadline)
	cancelWorkers()
	s.await(deadline, stopped)
	if err := s.runHooks(deadline); runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) startWorkers(ctx context.Context, workers []task[WorkerFunc]) <-chan struct{} {
	var wg sync.WaitGroup
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := s.logger.With("worker", w.name)
			log.Info("worker started")
			if err := w.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("worker failed", "error", err)
				return
			}
			log.Info("worker stopped")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *Server) drain(ctx context.Context) {
	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("listener shutdown", "error", err)
		return
	}
	s.logger.Info("listener closed")
}

func (s *Server) await(ctx context.Context, stopped <-chan struct{}) {
	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("workers still running at shutdown deadline", "timeout", s.grace)
	}
}

func (s *Server) runHooks(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]task[ShutdownFunc](nil), s.hooks...)
	s.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			s.logger.Error("component shutdown", "name", h.name, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		s.logger.Info("component stopped", "name", h.name)
	}
	if first == nil {
		s.logger.Info("shutdown complete")
	}
	return first
}

// Addr is the bound address once Run has started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.http.Addr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}
