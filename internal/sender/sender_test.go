package sender

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solite-rpc/bridge/internal/statusindex"
)

type fakeLeader struct {
	submits atomic.Int32
	err     error
}

func (f *fakeLeader) CurrentLeaders(ctx context.Context, n int) ([]string, error) {
	return []string{"leader-1"}, nil
}

func (f *fakeLeader) Submit(ctx context.Context, wire []byte) error {
	f.submits.Add(1)
	return f.err
}

func (f *fakeLeader) Close() error { return nil }

func sig(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	return s
}

func newTestSender(t *testing.T, leader *fakeLeader, batchInterval time.Duration) (*Sender, *statusindex.Index) {
	t.Helper()
	idx := statusindex.New()
	s := New(Config{
		BatchSize:     10,
		BatchInterval: batchInterval,
		CleanInterval: time.Hour,
	}, leader, idx, &statusindex.SlotCounter{}, Metrics{}, nil)
	return s, idx
}

func TestSender_FanOutRetriesUntilExhausted(t *testing.T) {
	fl := &fakeLeader{}
	s, _ := newTestSender(t, fl, 5*time.Millisecond)

	err := s.Enqueue(PendingTx{Signature: sig(1), Wire: []byte("tx"), RetriesRemaining: 3, ID: ulid.Make()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go s.Execute(ctx)

	<-ctx.Done()
	assert.Equal(t, int32(3), fl.submits.Load(), "retries_remaining=3 allows exactly 3 sender submissions before exhaustion")
	assert.Equal(t, 0, s.QueueLen())
}

func TestSender_DropsOnConfirm(t *testing.T) {
	fl := &fakeLeader{}
	s, idx := newTestSender(t, fl, 5*time.Millisecond)

	target := sig(2)
	idx.Upsert(target, statusindex.TransactionStatus{Slot: 1, ConfirmationStatus: statusindex.Confirmed})

	require.NoError(t, s.Enqueue(PendingTx{Signature: target, Wire: []byte("tx"), RetriesRemaining: 5, ID: ulid.Make()}))

	s.fanOutOnce(context.Background())

	assert.Equal(t, int32(0), fl.submits.Load(), "a signature already confirmed must never reach the leader client")
	assert.Equal(t, 0, s.QueueLen())
}

func TestSender_DropsOnRetryExhaustion(t *testing.T) {
	fl := &fakeLeader{}
	s, _ := newTestSender(t, fl, time.Hour)

	require.NoError(t, s.Enqueue(PendingTx{Signature: sig(3), Wire: []byte("tx"), RetriesRemaining: 0, ID: ulid.Make()}))

	s.fanOutOnce(context.Background())

	assert.Equal(t, int32(0), fl.submits.Load(), "a PendingTx with retries_remaining == 0 is dropped without being sent again")
	assert.Equal(t, 0, s.QueueLen())
}

func TestSender_EnqueueBackpressure(t *testing.T) {
	s := New(Config{QueueCapacity: 1, BatchInterval: time.Hour, CleanInterval: time.Hour}, &fakeLeader{}, statusindex.New(), &statusindex.SlotCounter{}, Metrics{}, nil)

	require.NoError(t, s.Enqueue(PendingTx{Signature: sig(4), RetriesRemaining: 1, ID: ulid.Make()}))
	err := s.Enqueue(PendingTx{Signature: sig(5), RetriesRemaining: 1, ID: ulid.Make()})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestSender_CleanPrunesOldEntries(t *testing.T) {
	fl := &fakeLeader{}
	s, idx := newTestSender(t, fl, time.Hour)
	s.slot.Advance(1000)
	idx.Upsert(sig(6), statusindex.TransactionStatus{Slot: 1})
	idx.Upsert(sig(7), statusindex.TransactionStatus{Slot: 999})

	s.cleanOnce()

	assert.Equal(t, 1, idx.Len())
}
