package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"castwatch/internal/metrics"
)

const (
	upstreamTimeout  = 30 * time.Second
	maxBodyBytes     = 1 << 20
	maxResponseBytes = 32 << 20
)

// handleRPCProxy forwards JSON-RPC requests to the configured upstream for
// the requested network, so browser clients share one server-side budget
// instead of hitting public endpoints from every tab.
func (h *Handler) handleRPCProxy(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	network := r.URL.Query().Get("network")
	if network == "" {
		network = "base"
	}

	if h.limiter != nil && !h.limiter.Allow(ip) {
		metrics.RPCProxyRequests.WithLabelValues(network, "rate_limited").Inc()
		w.Header().Set("Retry-After", "60")
		h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		return
	}

	upstream, ok := h.upstreams[network]
	if !ok || upstream == "" {
		metrics.RPCProxyRequests.WithLabelValues(network, "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "unsupported network: "+network)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		metrics.RPCProxyRequests.WithLabelValues(network, "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil || !validJSONRPC(body) {
		metrics.RPCProxyRequests.WithLabelValues(network, "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "invalid JSON-RPC request format")
		return
	}

	h.logger.Debug("rpc proxy request",
		zap.String("client_ip", ip),
		zap.String("network", network),
		zap.String("method", rpcMethod(body)))

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(raw))
	if err != nil {
		metrics.RPCProxyRequests.WithLabelValues(network, "upstream_error").Inc()
		h.writeError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		metrics.RPCProxyRequests.WithLabelValues(network, "upstream_error").Inc()
		h.logger.Error("rpc upstream unreachable", zap.String("network", network), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "failed to connect to RPC endpoint")
		return
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RPCProxyRequests.WithLabelValues(network, "upstream_error").Inc()
		h.writeError(w, http.StatusBadGateway, "failed to read RPC response")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RPCProxyRequests.WithLabelValues(network, "upstream_error").Inc()
		h.logger.Error("rpc upstream error status",
			zap.String("network", network), zap.Int("status", resp.StatusCode))
		h.writeError(w, http.StatusBadGateway, "RPC endpoint error")
		return
	}
	if !json.Valid(out) {
		metrics.RPCProxyRequests.WithLabelValues(network, "upstream_error").Inc()
		h.writeError(w, http.StatusBadGateway, "invalid response from RPC endpoint")
		return
	}

	metrics.RPCProxyRequests.WithLabelValues(network, "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// validJSONRPC accepts a single request object or a non-empty batch of them.
func validJSONRPC(v any) bool {
	switch body := v.(type) {
	case map[string]any:
		ver, _ := body["jsonrpc"].(string)
		method, _ := body["method"].(string)
		_, hasID := body["id"]
		return ver == "2.0" && method != "" && hasID
	case []any:
		if len(body) == 0 {
			return false
		}
		for _, item := range body {
			if !validJSONRPC(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func rpcMethod(v any) string {
	switch body := v.(type) {
	case map[string]any:
		if m, ok := body["method"].(string); ok {
			return m
		}
	case []any:
		return "batch"
	}
	return "unknown"
}

// clientIP resolves the caller's address, preferring proxy headers so rate
// limits key on the real client rather than the edge.
func clientIP(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return strings.TrimSpace(cf)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
