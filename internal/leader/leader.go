// Package leader implements the chain's transaction-port client: fire-and-
// forget delivery of wire transactions directly to cluster nodes' TPU QUIC
// endpoints over QUIC datagrams, bypassing the upstream RPC node's
// sendTransaction path.
package leader

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/quic-go/quic-go"
)

// Client fans a wire transaction out to one or more leader addresses. It is
// shared, read-only after construction, between the Bridge (direct submit)
// and the Sender (retry loop).
type Client interface {
	// CurrentLeaders returns up to n transaction-port addresses to fan out
	// to. The QUIC client takes them from the cluster-nodes list in the
	// order the upstream returns it; it does not consult the leader
	// schedule.
	CurrentLeaders(ctx context.Context, n int) ([]string, error)
	// Submit fires wire at every address returned by CurrentLeaders. Errors
	// dialing or writing to an individual leader are not fatal to the call;
	// Submit only fails if every leader attempt fails.
	Submit(ctx context.Context, wire []byte) error
	Close() error
}

// Config configures the QUIC transaction-port client.
type Config struct {
	FanOutSize  int
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

func (c Config) withDefaults() Config {
	if c.FanOutSize <= 0 {
		c.FanOutSize = 4
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.TLSConfig == nil {
		c.TLSConfig = &tls.Config{NextProtos: []string{"solana-tpu"}, InsecureSkipVerify: true}
	}
	return c
}

// quicClient is the production Client: it dials QUIC connections to leaders
// on demand and sends each wire transaction as an unreliable datagram, the
// idiomatic Go rendering of spec.md's "UDP/QUIC to current leaders".
type quicClient struct {
	cfg      Config
	upstream *rpc.Client
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*quic.Conn
}

// NewQUICClient returns a Client that resolves addresses from the upstream
// RPC node's cluster-nodes call and fans transactions out to them over
// QUIC. Nodes are not ordered or filtered by the leader schedule.
func NewQUICClient(upstream *rpc.Client, cfg Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &quicClient{
		cfg:      cfg.withDefaults(),
		upstream: upstream,
		logger:   logger,
		conns:    make(map[string]*quic.Conn),
	}
}

// CurrentLeaders asks the upstream node for the cluster's TPU-bearing nodes
// and returns up to n of them. The upstream RPC node is the only source of
// cluster topology this gateway has; that call is the one upstream RPC
// dependency the Sender's fan-out path carries.
func (c *quicClient) CurrentLeaders(ctx context.Context, n int) ([]string, error) {
	nodes, err := c.upstream.GetClusterNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("leader: get cluster nodes: %w", err)
	}
	out := make([]string, 0, n)
	for _, node := range nodes {
		if node.TPUQUIC == nil {
			continue
		}
		out = append(out, *node.TPUQUIC)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (c *quicClient) dial(ctx context.Context, addr string) (*quic.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, err := quic.DialAddr(dialCtx, addr, c.cfg.TLSConfig, nil)
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

// Submit fans wire out to the current leader set. An individual leader
// failing to dial or accept the datagram is logged, never returned, unless
// every leader attempt fails — matching the "fire-and-forget" semantics of
// spec.md §4.3's fan-out loop.
func (c *quicClient) Submit(ctx context.Context, wire []byte) error {
	leaders, err := c.CurrentLeaders(ctx, c.cfg.FanOutSize)
	if err != nil {
		return err
	}
	if len(leaders) == 0 {
		return fmt.Errorf("leader: no leaders available")
	}

	var lastErr error
	delivered := 0
	for _, addr := range leaders {
		conn, err := c.dial(ctx, addr)
		if err != nil {
			c.logger.Warn("leader dial failed", slog.String("addr", addr), slog.Any("error", err))
			lastErr = err
			continue
		}
		if err := conn.SendDatagram(wire); err != nil {
			c.logger.Warn("leader datagram send failed", slog.String("addr", addr), slog.Any("error", err))
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("leader: all %d leader submits failed: %w", len(leaders), lastErr)
	}
	return nil
}

func (c *quicClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		_ = conn.CloseWithError(0, "shutdown")
		delete(c.conns, addr)
	}
	return nil
}
