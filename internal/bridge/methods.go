package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/solite-rpc/bridge/internal/handler/jsonrpc"
	"github.com/solite-rpc/bridge/internal/sender"
)

// sendTransactionConfig matches the upstream chain RPC's config object.
// skipPreflight, preflightCommitment, and minContextSlot are recognized for
// protocol compatibility and deliberately ignored — this core does not
// simulate or enforce preflight policy.
type sendTransactionConfig struct {
	Encoding            string  `json:"encoding"`
	MaxRetries          *uint32 `json:"maxRetries"`
	SkipPreflight       *bool   `json:"skipPreflight"`
	PreflightCommitment *string `json:"preflightCommitment"`
	MinContextSlot      *uint64 `json:"minContextSlot"`
}

func (b *Bridge) handleSendTransaction(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.Error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) < 1 {
		return nil, jsonrpc.ErrInvalidParams("sendTransaction requires [encoded_tx, config?]")
	}

	var encodedTx string
	if err := json.Unmarshal(args[0], &encodedTx); err != nil {
		return nil, jsonrpc.ErrInvalidParams("encoded_tx must be a string")
	}

	var cfg sendTransactionConfig
	if len(args) >= 2 {
		if err := json.Unmarshal(args[1], &cfg); err != nil {
			return nil, jsonrpc.ErrInvalidParams("invalid send config: " + err.Error())
		}
	}
	maxRetries := uint32(1)
	if cfg.MaxRetries != nil {
		maxRetries = *cfg.MaxRetries
	}

	wire, rpcErr := decodeTransaction(encodedTx, cfg.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	tx, err := solana.TransactionFromBytes(wire)
	if err != nil || len(tx.Signatures) == 0 {
		return nil, jsonrpc.ErrInvalidTransaction("transaction failed to deserialize or carries no signatures")
	}
	sig := tx.Signatures[0]

	// Direct submit is best-effort: a failure here is not fatal, the retry
	// pipeline will keep trying.
	if err := b.cfg.Leader.Submit(ctx, wire); err != nil {
		b.logger.Warn("direct submit failed",
			slog.String("signature", sig.String()),
			slog.String("request_id", b.requestIDFrom(ctx)),
			slog.Any("error", err),
		)
	}

	if err := b.cfg.Sender.Enqueue(sender.PendingTx{
		Signature:        sig,
		Wire:             wire,
		RetriesRemaining: maxRetries,
	}); err != nil {
		b.logger.Warn("enqueue failed", slog.String("signature", sig.String()), slog.Any("error", err))
	}

	return base58.Encode(sig[:]), nil
}

func (b *Bridge) handleConfirmTransaction(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.Error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) < 1 {
		return nil, jsonrpc.ErrInvalidParams("confirmTransaction requires [signature, commitment?]")
	}

	var sigStr string
	if err := json.Unmarshal(args[0], &sigStr); err != nil {
		return nil, jsonrpc.ErrInvalidParams("signature must be a string")
	}

	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		return nil, jsonrpc.ErrInvalidSignature(err.Error())
	}

	// The optional commitment argument is accepted but not used to filter:
	// the Block Listener subscribes at a single configured commitment, and
	// this core preserves that parity with the source rather than guess at
	// per-call commitment filtering semantics.
	return b.cfg.Confirmer.Confirmed(sig), nil
}

type versionResult struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

func (b *Bridge) handleGetVersion(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.Error) {
	fs := featureSet
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		// best-effort: fold the length of the module version string into the
		// feature set, so builds whose version strings differ in length
		// report different values; falls back to the static constant
		// otherwise.
		fs = fs ^ uint32(len(info.Main.Version))
	}
	return versionResult{SolanaCore: chainVersion, FeatureSet: fs}, nil
}

// handlePassthrough forwards the raw request body verbatim to the upstream
// RPC endpoint and writes its status code and body back unchanged.
func (b *Bridge) handlePassthrough(w http.ResponseWriter, r *http.Request, body []byte) {
	status, respBody, err := b.passthrough.Forward(r.Context(), body)
	if err != nil {
		b.logger.Warn("passthrough failed", slog.Any("error", err))
		writeUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// writeUpstreamError renders a transport-level passthrough failure (the
// upstream was unreachable, not that it returned an error body) as a
// JSON-RPC UpstreamError, never a raw 500.
func writeUpstreamError(w http.ResponseWriter, err error) {
	resp := jsonrpc.Response{
		JSONRPC: "2.0",
		Error:   jsonrpc.ErrUpstream(fmt.Sprintf("upstream request failed: %v", err)),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(502)
	enc := json.NewEncoder(w)
	_ = enc.Encode(resp)
}
