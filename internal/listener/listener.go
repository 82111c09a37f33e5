// Package listener implements the Block Listener: it subscribes to the
// upstream's block-notification stream and maintains the signature-status
// index and slot counter that the Bridge and Sender read from.
package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/solite-rpc/bridge/internal/statusindex"
)

// Metrics receives observations from the block-notification loop. A nil
// field is a no-op; see internal/metrics for the prometheus-backed
// implementation.
type Metrics struct {
	SlotAdvanced         func(slot uint64)
	ConfirmationObserved func()
}

func (m Metrics) set(f func(uint64), v uint64) {
	if f != nil {
		f(v)
	}
}

func (m Metrics) inc(f func()) {
	if f != nil {
		f()
	}
}

// Listener subscribes to the upstream block stream at a configured
// commitment and maintains the shared SignatureIndex and SlotCounter.
type Listener struct {
	wsURL      string
	commitment rpc.CommitmentType
	upstream   *rpc.Client
	logger     *slog.Logger

	index   *statusindex.Index
	slot    *statusindex.SlotCounter
	metrics Metrics
}

// New seeds the SlotCounter from a synchronous GetSlot call against the
// upstream and returns a Listener ready for its long-running task.
func New(ctx context.Context, upstream *rpc.Client, wsURL string, commitment rpc.CommitmentType, metrics Metrics, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	slot, err := upstream.GetSlot(ctx, commitment)
	if err != nil {
		return nil, fmt.Errorf("listener: initial get_slot: %w", err)
	}

	l := &Listener{
		wsURL:      wsURL,
		commitment: commitment,
		upstream:   upstream,
		logger:     logger,
		index:      statusindex.New(),
		slot:       &statusindex.SlotCounter{},
		metrics:    metrics,
	}
	l.slot.Advance(slot)
	l.metrics.set(l.metrics.SlotAdvanced, slot)
	return l, nil
}

// Index returns the shared signature-status index.
func (l *Listener) Index() *statusindex.Index { return l.index }

// Slot returns the shared slot counter.
func (l *Listener) Slot() *statusindex.SlotCounter { return l.slot }

// Confirmed reports whether sig has been observed in a notified block.
func (l *Listener) Confirmed(sig solana.Signature) bool {
	return l.index.Has(sig)
}

// SignatureStatuses is a batched status lookup mirroring the original
// bridge's get_signature_statuses. It is not exposed over the JSON-RPC
// surface in this core, but is a real operation of the source system kept
// intact for internal callers and tests.
func (l *Listener) SignatureStatuses(sigs []solana.Signature) []*statusindex.TransactionStatus {
	return l.index.Statuses(sigs)
}

// Listen is the long-running task: it subscribes to the block stream and
// feeds every observed signature into the index until the subscription
// terminates or ctx is canceled. A terminated subscription is reported as
// an error so the supervisor can surface it and shut the process down.
func (l *Listener) Listen(ctx context.Context) error {
	wsClient, err := ws.Connect(ctx, l.wsURL)
	if err != nil {
		return fmt.Errorf("listener: connect: %w", err)
	}
	defer wsClient.Close()

	sub, err := wsClient.BlockSubscribe(
		ws.NewBlockSubscribeFilterAll(),
		&ws.BlockSubscribeOpts{
			Commitment:         l.commitment,
			TransactionDetails: rpc.TransactionDetailsSignatures,
		},
	)
	if err != nil {
		return fmt.Errorf("listener: block subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	confirmationStatus := statusindex.Confirmed
	if l.commitment == rpc.CommitmentFinalized {
		confirmationStatus = statusindex.Finalized
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		got, err := sub.Recv(ctx)
		if err != nil {
			return fmt.Errorf("listener: subscription closed: %w", err)
		}
		if got == nil {
			continue
		}

		l.handleNotification(got, confirmationStatus)
	}
}

func (l *Listener) handleNotification(notif *ws.BlockResult, confirmationStatus statusindex.ConfirmationStatus) {
	l.slot.Advance(notif.Context.Slot)
	l.metrics.set(l.metrics.SlotAdvanced, l.slot.Load())

	if notif.Value.Block == nil {
		// missed slot: no block payload, nothing to index.
		return
	}
	sigs := notif.Value.Block.Signatures
	if len(sigs) == 0 {
		return
	}

	for _, sig := range sigs {
		l.index.Upsert(sig, statusindex.TransactionStatus{
			Slot:               notif.Value.Slot,
			Confirmations:      1,
			ConfirmationStatus: confirmationStatus,
		})
		l.metrics.inc(l.metrics.ConfirmationObserved)
	}

	l.logger.Debug("indexed block notification",
		slog.Uint64("slot", notif.Value.Slot),
		slog.Int("signatures", len(sigs)),
	)
}
