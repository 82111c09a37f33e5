// Package supervisor launches the gateway's three long-lived tasks — the
// HTTP endpoint, the Block Listener, and the Transaction Sender — and joins
// on the first one to return an error.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/solite-rpc/bridge/internal/bridge"
	"github.com/solite-rpc/bridge/internal/listener"
	"github.com/solite-rpc/bridge/internal/sender"
)

// Config collects everything the supervisor needs to start the service set.
type Config struct {
	HTTPAddr string
	Bridge   *bridge.Bridge
	Listener *listener.Listener
	Sender   *sender.Sender
	Logger   *slog.Logger
}

// Supervisor spawns and supervises the HTTP server, Block Listener, and
// Transaction Sender tasks. It has no internal restart policy: Run returns
// as soon as any one of them does, canceling the others cooperatively.
type Supervisor struct {
	cfg Config
}

// New returns a Supervisor for cfg.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Run blocks until ctx is canceled or one of the three tasks returns an
// error, and returns that error (nil on clean shutdown). This is the
// idiomatic Go rendering of spec.md §4.4's "returns handles that a caller
// can join" via golang.org/x/sync/errgroup: the group's context is canceled
// the moment any task returns, giving the other two tasks cooperative
// cancellation at their next suspension point.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	server := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.cfg.Bridge.Router(),
	}

	g.Go(func() error {
		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return fmt.Errorf("supervisor: http listen: %w", err)
		}
		logger.Info("http endpoint listening", slog.String("addr", server.Addr))
		err = server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	g.Go(func() error {
		logger.Info("block listener starting")
		return s.cfg.Listener.Listen(ctx)
	})

	g.Go(func() error {
		logger.Info("transaction sender starting")
		return s.cfg.Sender.Execute(ctx)
	})

	err := g.Wait()
	if err != nil && parent.Err() != nil && errors.Is(err, context.Canceled) {
		// The caller canceled ctx: the tasks stopped because of that
		// cancellation, which is a clean shutdown.
		return nil
	}
	return err
}
