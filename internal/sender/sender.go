// Package sender implements the Transaction Sender: the retry/fan-out
// pipeline that owns pending transactions from first submit through
// confirmation or retry exhaustion.
package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/oklog/ulid/v2"

	"github.com/solite-rpc/bridge/internal/leader"
	"github.com/solite-rpc/bridge/internal/statusindex"
)

// PendingTx is a transaction awaiting confirmation or exhaustion.
type PendingTx struct {
	Signature        solana.Signature
	Wire             []byte
	RetriesRemaining uint32
	// ID is a correlation identifier used only for logging and metrics; it
	// never participates in indexing or dedup, which is always by Signature.
	ID ulid.ULID
}

// ErrBackpressure is returned by Enqueue when the queue is full.
var ErrBackpressure = errStr("sender: queue is full")

type errStr string

func (e errStr) Error() string { return string(e) }

// Config configures the Sender's queue and timing.
type Config struct {
	// QueueCapacity bounds the pending-transaction queue. The reference
	// design leaves it unbounded; this implementation defaults to a large
	// bounded capacity and rejects enqueue with ErrBackpressure when full,
	// per spec.md §4.3's "implementations MAY bound it" clause.
	QueueCapacity int
	BatchSize     int
	BatchInterval time.Duration
	CleanInterval time.Duration
	// CleanHorizonSlots prunes SignatureIndex entries older than this many
	// slots behind the current SlotCounter value.
	CleanHorizonSlots uint64
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100_000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 200 * time.Millisecond
	}
	if c.CleanInterval <= 0 {
		c.CleanInterval = 10 * time.Second
	}
	if c.CleanHorizonSlots == 0 {
		c.CleanHorizonSlots = 150 // roughly one minute of slots
	}
	return c
}

// Sender owns the pending-transaction queue and the retry/fan-out loop.
type Sender struct {
	cfg    Config
	queue  chan PendingTx
	leader leader.Client
	index  *statusindex.Index
	slot   *statusindex.SlotCounter
	logger *slog.Logger

	metrics Metrics
}

// Metrics receives counts from the fan-out and clean loops. A nil field is
// a no-op; see internal/metrics for the prometheus-backed implementation.
type Metrics struct {
	Submitted      func()
	Retried        func()
	DroppedConfirm func()
	DroppedExhaust func()
	Pruned         func(n int)
	QueueDepth     func(n int)
}

func (m Metrics) inc(f func()) {
	if f != nil {
		f()
	}
}

// New constructs a Sender. index and slot are shared with the Listener;
// the Sender only reads slot, and reads index except for the clean loop,
// which prunes old entries from it.
func New(cfg Config, leaderClient leader.Client, index *statusindex.Index, slot *statusindex.SlotCounter, metrics Metrics, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Sender{
		cfg:     cfg,
		queue:   make(chan PendingTx, cfg.QueueCapacity),
		leader:  leaderClient,
		index:   index,
		slot:    slot,
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue is a non-blocking push. It fails only when the queue is full. A
// PendingTx with a zero ID is given a fresh one.
func (s *Sender) Enqueue(p PendingTx) error {
	if p.ID == (ulid.ULID{}) {
		p.ID = ulid.Make()
	}
	select {
	case s.queue <- p:
		return nil
	default:
		return ErrBackpressure
	}
}

// QueueLen reports the number of items currently queued, for metrics/tests.
func (s *Sender) QueueLen() int { return len(s.queue) }

// Execute runs the fan-out and clean loops until ctx is canceled. Both
// sub-loops share this single goroutine, alternating on ticker ticks, which
// spec.md §4.3 explicitly allows ("a single task alternating between them
// is acceptable").
func (s *Sender) Execute(ctx context.Context) error {
	fanOutTicker := time.NewTicker(s.cfg.BatchInterval)
	defer fanOutTicker.Stop()
	cleanTicker := time.NewTicker(s.cfg.CleanInterval)
	defer cleanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fanOutTicker.C:
			s.fanOutOnce(ctx)
		case <-cleanTicker.C:
			s.cleanOnce()
		}
	}
}

// fanOutOnce drains up to BatchSize items without blocking, submits each to
// the leader client (unless already confirmed), decrements its retry
// budget, and re-enqueues survivors at the tail.
func (s *Sender) fanOutOnce(ctx context.Context) {
	batch := make([]PendingTx, 0, s.cfg.BatchSize)
drain:
	for len(batch) < s.cfg.BatchSize {
		select {
		case p := <-s.queue:
			batch = append(batch, p)
		default:
			break drain
		}
	}

	if s.metrics.QueueDepth != nil {
		s.metrics.QueueDepth(s.QueueLen())
	}

	for _, p := range batch {
		if s.index.Has(p.Signature) {
			s.metrics.inc(s.metrics.DroppedConfirm)
			continue
		}

		if p.RetriesRemaining == 0 {
			// Budget already exhausted: drop without submitting again.
			s.metrics.inc(s.metrics.DroppedExhaust)
			continue
		}

		if err := s.leader.Submit(ctx, p.Wire); err != nil {
			s.logger.Warn("leader submit failed",
				slog.String("signature", p.Signature.String()),
				slog.String("id", p.ID.String()),
				slog.Any("error", err),
			)
		}
		s.metrics.inc(s.metrics.Submitted)
		p.RetriesRemaining--

		if p.RetriesRemaining == 0 {
			// This was the last allowed submission: don't re-enqueue it.
			s.metrics.inc(s.metrics.DroppedExhaust)
			continue
		}

		if err := s.Enqueue(p); err != nil {
			// The queue filled up between drain and re-enqueue; the retry
			// is lost, equivalent to exhaustion.
			s.metrics.inc(s.metrics.DroppedExhaust)
		} else {
			s.metrics.inc(s.metrics.Retried)
		}
	}
}

// cleanOnce prunes SignatureIndex entries older than the configured slot
// horizon behind the current SlotCounter value.
func (s *Sender) cleanOnce() {
	current := s.slot.Load()
	if current < s.cfg.CleanHorizonSlots {
		return
	}
	removed := s.index.Prune(current - s.cfg.CleanHorizonSlots)
	if removed > 0 {
		if s.metrics.Pruned != nil {
			s.metrics.Pruned(removed)
		}
		s.logger.Debug("pruned signature index", slog.Int("removed", removed))
	}
}
