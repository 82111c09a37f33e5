package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RPCRequestIDKey is the context key for the RPC request ID.
	RPCRequestIDKey ContextKey = "rpc_request_id"
)

// MethodHandler is the function signature for JSON-RPC method handlers.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// FallbackHandler receives the raw request body for a method the Handler has
// no registered MethodHandler for. It is responsible for writing the full
// HTTP response itself (the Handler does not wrap it in a JSON-RPC envelope).
type FallbackHandler func(w http.ResponseWriter, r *http.Request, body []byte)

// Handler handles JSON-RPC 2.0 requests. Batch requests are not supported:
// the endpoint parses only a single request object per call.
type Handler struct {
	methods  map[string]MethodHandler
	mu       sync.RWMutex
	logger   *slog.Logger
	fallback FallbackHandler
}

// NewHandler creates a new JSON-RPC handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		methods: make(map[string]MethodHandler),
		logger:  logger,
	}
}

// RegisterMethod registers a handler for a JSON-RPC method.
func (h *Handler) RegisterMethod(name string, handler MethodHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[name] = handler
}

// SetFallback installs the handler invoked for any method with no registered
// MethodHandler. Without one, unrecognized methods get a MethodNotFound error.
func (h *Handler) SetFallback(fallback FallbackHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = fallback
}

// HasMethod checks if a method is registered.
func (h *Handler) HasMethod(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.methods[name]
	return exists
}

// RegisteredMethods returns a list of all registered method names.
func (h *Handler) RegisteredMethods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	methods := make([]string, 0, len(h.methods))
	for name := range h.methods {
		methods = append(methods, name)
	}
	return methods
}

// ServeHTTP implements http.Handler for JSON-RPC.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, nil, NewError(InvalidRequest, "Method not allowed", "use POST"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeErrorStatus(w, nil, ErrParseError("failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		h.writeError(w, nil, ErrInvalidRequest("empty request body"))
		return
	}

	if body[0] == '[' {
		h.writeError(w, nil, ErrInvalidRequest("batch requests are not supported"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeErrorStatus(w, nil, ErrParseError(err.Error()), http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		h.writeError(w, req.ID, err)
		return
	}

	h.mu.RLock()
	handler, exists := h.methods[req.Method]
	fallback := h.fallback
	h.mu.RUnlock()

	if !exists {
		if fallback != nil {
			fallback(w, r, body)
			return
		}
		h.writeError(w, req.ID, ErrMethodNotFound(req.Method))
		return
	}

	resp := h.processRequest(r.Context(), &req, handler)

	if req.ID == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeResponse(w, resp)
}

// processRequest executes a registered handler and builds its response.
func (h *Handler) processRequest(ctx context.Context, req *Request, handler MethodHandler) *Response {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	reqID := uuid.New().String()
	ctx = context.WithValue(ctx, RPCRequestIDKey, reqID)

	h.logger.Debug("processing RPC request",
		slog.String("method", req.Method),
		slog.String("request_id", reqID),
	)

	result, err := handler(ctx, req.Params)
	if err != nil {
		h.logger.Warn("RPC request failed",
			slog.String("method", req.Method),
			slog.String("request_id", reqID),
			slog.Int("error_code", err.Code),
			slog.String("error_message", err.Message),
		)
		resp.Error = err
		return resp
	}

	resp.Result = result
	return resp
}

// writeResponse writes a single JSON-RPC response with a 200 status, the
// status every in-process method/business error uses per spec.md §4.1.
func (h *Handler) writeResponse(w http.ResponseWriter, resp *Response) {
	h.writeResponseStatus(w, resp, http.StatusOK)
}

// writeResponseStatus writes a JSON-RPC response with an explicit HTTP
// status, for the boundary cases (malformed body) that spec.md §8 requires
// a 400-class status for.
func (h *Handler) writeResponseStatus(w http.ResponseWriter, resp *Response, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response with the given ID (nil when unknown)
// at HTTP 200.
func (h *Handler) writeError(w http.ResponseWriter, id interface{}, err *Error) {
	h.writeErrorStatus(w, id, err, http.StatusOK)
}

// writeErrorStatus writes an error response at an explicit HTTP status.
func (h *Handler) writeErrorStatus(w http.ResponseWriter, id interface{}, err *Error, status int) {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}
	h.writeResponseStatus(w, resp, status)
}
