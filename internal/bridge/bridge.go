// Package bridge is the request router: it parses the JSON-RPC envelope,
// dispatches sendTransaction/confirmTransaction/getVersion in-process, and
// forwards every other method verbatim to the upstream RPC endpoint.
package bridge

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solite-rpc/bridge/internal/handler/jsonrpc"
	"github.com/solite-rpc/bridge/internal/leader"
	"github.com/solite-rpc/bridge/internal/metrics"
	"github.com/solite-rpc/bridge/internal/sender"
)

// chainVersion and featureSet identify this gateway's compiled
// chain-compatibility version. There is no running chain binary to
// introspect, so getVersion returns these compiled-in values (featureSet is
// adjusted by the module version when the build carries one; see
// handleGetVersion).
const (
	chainVersion = "1.18.0"
	featureSet   = uint32(123_456_789)
)

// Confirmer answers confirmTransaction lookups against the Block Listener's
// signature index. Bridge depends on this narrow interface rather than the
// concrete *listener.Listener so it can be dispatched to and tested without
// a live WebSocket subscription.
type Confirmer interface {
	Confirmed(sig solana.Signature) bool
}

// Config wires the Bridge's collaborators: the Sender and Confirmer it
// dispatches to, the leader client used for the initial direct submit, the
// upstream RPC URL used for passthrough, and the observability stack.
type Config struct {
	UpstreamRPCURL string
	Sender         *sender.Sender
	Confirmer      Confirmer
	Leader         leader.Client
	Metrics        *metrics.Registry
	Logger         *slog.Logger
}

// Bridge is immutable after construction; the mutable state it references
// (the Sender's queue, the Listener's index) lives in those components.
type Bridge struct {
	cfg         Config
	rpcHandler  *jsonrpc.Handler
	passthrough *passthroughClient
	logger      *slog.Logger
}

// New constructs a Bridge and registers its JSON-RPC methods.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		cfg:         cfg,
		rpcHandler:  jsonrpc.NewHandler(logger),
		passthrough: newPassthroughClient(cfg.UpstreamRPCURL),
		logger:      logger,
	}

	b.rpcHandler.RegisterMethod("sendTransaction", b.handleSendTransaction)
	b.rpcHandler.RegisterMethod("confirmTransaction", b.handleConfirmTransaction)
	b.rpcHandler.RegisterMethod("getVersion", b.handleGetVersion)
	b.rpcHandler.SetFallback(b.handlePassthrough)

	return b
}

// Router returns the Bridge's HTTP handler: the JSON-RPC endpoint on `/`
// plus, when Config.Metrics is set, a Prometheus `/metrics` route, matching
// SPEC_FULL's added external interface.
func (b *Bridge) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/", b.rpcHandler.ServeHTTP)
	if b.cfg.Metrics != nil {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
	return r
}

// decodeTransaction decodes raw per encoding ("base58" or "base64", with an
// empty encoding treated as base64), failing with InvalidEncoding on a bad
// decode or an unsupported encoding. It does not inspect the decoded bytes;
// handleSendTransaction reports InvalidTransaction when they fail to
// deserialize.
func decodeTransaction(raw string, encoding string) ([]byte, *jsonrpc.Error) {
	switch encoding {
	case "base64", "":
		wire, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, jsonrpc.ErrInvalidEncoding(err.Error())
		}
		return wire, nil
	case "base58":
		wire, err := base58.Decode(raw)
		if err != nil {
			return nil, jsonrpc.ErrInvalidEncoding(err.Error())
		}
		return wire, nil
	default:
		return nil, jsonrpc.ErrInvalidEncoding("unsupported encoding: " + encoding)
	}
}

func (b *Bridge) requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(jsonrpc.RPCRequestIDKey).(string); ok {
		return id
	}
	return ""
}
