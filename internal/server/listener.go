// Package server owns the TCP listener and its graceful shutdown: a bare
// accept loop dispatching one goroutine per connection, closed by
// SIGINT/SIGTERM with in-flight requests run to completion.
package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/5cover/tchatator413/internal/config"
	"github.com/5cover/tchatator413/internal/eval"
	"github.com/5cover/tchatator413/internal/metrics"
	"github.com/5cover/tchatator413/internal/turnstile"
)

// Listener binds the single TCP socket the server accepts on and
// dispatches one goroutine per accepted connection.
type Listener struct {
	cfg   *config.Config
	log   *config.Logger
	ts    *turnstile.Turnstile
	ev    *eval.Evaluator
	trace *traceGen

	wg sync.WaitGroup
}

// New builds a Listener over an already-constructed Evaluator and Turnstile.
// If a trace id generator cannot be built (a degenerate snowflake worker id
// range), trace ids fall back to "-" rather than failing startup over a
// logging nicety.
func New(cfg *config.Config, log *config.Logger, ts *turnstile.Turnstile, ev *eval.Evaluator) *Listener {
	trace, err := newTraceGen(0)
	if err != nil {
		log.Warning("trace id generator: %v", err)
		trace = nil
	}
	return &Listener{cfg: cfg, log: log, ts: ts, ev: ev, trace: trace}
}

// Serve binds 127.0.0.1:cfg.port and accepts connections until ctx is
// cancelled (by a SIGINT/SIGTERM observed by ListenAndServeWithSignals, or
// by the caller). It returns once the listener is closed and every
// in-flight connection has run to completion. The listen backlog is the
// operating system's default; cfg.Backlog is not applied.
func (s *Listener) Serve(ctx context.Context) error {
	// cfg.Backlog has no portable equivalent through net.Listen: the
	// stdlib always asks the OS for its default backlog and exposes no
	// knob to override it without reimplementing socket setup over
	// syscall. The configured value is neither validated nor used here.
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.cfg.Port))))
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.log.Info("listener: closing")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				s.log.Warning("accept: %v", err)
				continue
			}
		}
		metrics.ConnectionsAccepted.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// ListenAndServeWithSignals runs Serve, cancelling its context on
// SIGINT/SIGTERM.
func (s *Listener) ListenAndServeWithSignals() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.log.Info("signal received: %s, shutting down", sig)
		cancel()
	}()

	return s.Serve(ctx)
}
