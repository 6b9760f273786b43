package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"castwatch/internal/model"
	"castwatch/internal/ratelimit"
)

// Store is the persistence surface the API reads and writes.
type Store interface {
	GetUserByAddress(ctx context.Context, walletAddress string) (model.User, bool, error)
	GetOrCreateUser(ctx context.Context, walletAddress string) (model.User, error)
	RecentAttestations(ctx context.Context, address string, limit int) ([]model.TogetherAttestation, error)
	AttestationsForPair(ctx context.Context, addrA, addrB string) ([]model.TogetherAttestation, error)
	UpsertPendingConnection(ctx context.Context, fromUserID, toUserID int32, expiresAt time.Time) (model.PendingConnection, error)
	HasPendingBetween(ctx context.Context, fromUserID, toUserID int32) (bool, error)
}

// Handler holds the dependencies for API handlers.
type Handler struct {
	store      Store
	limiter    *ratelimit.PerKey
	upstreams  map[string]string
	pendingTTL time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler builds the handler set. upstreams maps network names accepted
// by the RPC proxy to their upstream URLs.
func NewHandler(store Store, limiter *ratelimit.PerKey, upstreams map[string]string, pendingTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:      store,
		limiter:    limiter,
		upstreams:  upstreams,
		pendingTTL: pendingTTL,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// NewRouter configures the HTTP router with all API routes.
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/profile/{address}", h.handleProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/attestations", h.handleAttestations).Methods(http.MethodGet)
	r.HandleFunc("/api/together", h.handleTogether).Methods(http.MethodPost)
	r.HandleFunc("/api/rpc", h.handleRPCProxy).Methods(http.MethodPost)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
