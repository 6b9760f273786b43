package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"castwatch/internal/ratelimit"
)

func newProxyHandler(upstreams map[string]string, limiter *ratelimit.PerKey) *Handler {
	return NewHandler(newFakeStore(), limiter, upstreams, 10*time.Minute, zap.NewNop())
}

const validRPCBody = `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`

func TestRPCProxyForwardsRequest(t *testing.T) {
	var gotBody string
	var gotContentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer upstream.Close()

	h := newProxyHandler(map[string]string{"base": upstream.URL}, nil)

	rec := doRequest(h, http.MethodPost, "/api/rpc", []byte(validRPCBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"jsonrpc":"2.0","id":1,"result":"0x10"}` {
		t.Fatalf("response not passed through: %s", rec.Body.String())
	}
	if gotBody != validRPCBody {
		t.Fatalf("upstream body mismatch: %s", gotBody)
	}
	if gotContentType != "application/json" {
		t.Fatalf("upstream content type: %s", gotContentType)
	}
}

func TestRPCProxyNetworkSelection(t *testing.T) {
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"base"}`))
	}))
	defer base.Close()
	world := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"world"}`))
	}))
	defer world.Close()

	h := newProxyHandler(map[string]string{"base": base.URL, "worldchain": world.URL}, nil)

	// No network parameter defaults to base.
	rec := doRequest(h, http.MethodPost, "/api/rpc", []byte(validRPCBody))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"jsonrpc":"2.0","id":1,"result":"base"}` {
		t.Fatalf("default network: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodPost, "/api/rpc?network=worldchain", []byte(validRPCBody))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"jsonrpc":"2.0","id":1,"result":"world"}` {
		t.Fatalf("worldchain network: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodPost, "/api/rpc?network=solana", []byte(validRPCBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported network status: %d", rec.Code)
	}
}

func TestRPCProxyRejectsInvalidRequests(t *testing.T) {
	h := newProxyHandler(map[string]string{"base": "http://unused.example"}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"not json", "eth_blockNumber"},
		{"wrong version", `{"jsonrpc":"1.0","method":"eth_blockNumber","id":1}`},
		{"missing method", `{"jsonrpc":"2.0","id":1}`},
		{"missing id", `{"jsonrpc":"2.0","method":"eth_blockNumber"}`},
		{"empty batch", `[]`},
		{"batch with bad entry", `[{"jsonrpc":"2.0","method":"eth_blockNumber","id":1},{"jsonrpc":"2.0"}]`},
		{"bare string", `"eth_blockNumber"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/api/rpc", []byte(tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRPCProxyAcceptsBatch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"},{"jsonrpc":"2.0","id":2,"result":"0x2"}]`))
	}))
	defer upstream.Close()

	h := newProxyHandler(map[string]string{"base": upstream.URL}, nil)

	batch := `[{"jsonrpc":"2.0","method":"eth_blockNumber","id":1},{"jsonrpc":"2.0","method":"eth_chainId","id":2}]`
	rec := doRequest(h, http.MethodPost, "/api/rpc", []byte(batch))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
}

func TestRPCProxyUpstreamFailures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	h := newProxyHandler(map[string]string{"base": bad.URL}, nil)
	rec := doRequest(h, http.MethodPost, "/api/rpc", []byte(validRPCBody))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("upstream 500 should map to 502, got %d", rec.Code)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer garbage.Close()

	h = newProxyHandler(map[string]string{"base": garbage.URL}, nil)
	rec = doRequest(h, http.MethodPost, "/api/rpc", []byte(validRPCBody))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("non-JSON upstream should map to 502, got %d", rec.Code)
	}

	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	h = newProxyHandler(map[string]string{"base": closedURL}, nil)
	rec = doRequest(h, http.MethodPost, "/api/rpc", []byte(validRPCBody))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unreachable upstream should map to 502, got %d", rec.Code)
	}
}

func TestRPCProxyRateLimits(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer upstream.Close()

	limiter := ratelimit.NewPerKey(1)
	defer limiter.Stop()

	h := newProxyHandler(map[string]string{"base": upstream.URL}, limiter)
	router := h.NewRouter()

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/rpc", bytes.NewReader([]byte(validRPCBody)))
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("9.9.9.9"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := send("9.9.9.9")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}

	// A different client keeps its own budget.
	if rec := send("8.8.8.8"); rec.Code != http.StatusOK {
		t.Fatalf("other client: %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	build := func(remote string, headers map[string]string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/rpc", nil)
		req.RemoteAddr = remote
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req
	}

	if got := clientIP(build("10.0.0.1:1234", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"})); got != "1.1.1.1" {
		t.Fatalf("cf header should win: %s", got)
	}
	if got := clientIP(build("10.0.0.1:1234", map[string]string{"X-Forwarded-For": "3.3.3.3, 4.4.4.4"})); got != "3.3.3.3" {
		t.Fatalf("first forwarded entry should win: %s", got)
	}
	if got := clientIP(build("10.0.0.1:1234", map[string]string{"X-Real-IP": "5.5.5.5"})); got != "5.5.5.5" {
		t.Fatalf("real ip should win: %s", got)
	}
	if got := clientIP(build("10.0.0.1:1234", nil)); got != "10.0.0.1" {
		t.Fatalf("remote addr host expected: %s", got)
	}
	if got := clientIP(build("unix-socket", nil)); got != "unix-socket" {
		t.Fatalf("unsplittable remote addr should pass through: %s", got)
	}
}

func TestValidJSONRPC(t *testing.T) {
	if validJSONRPC(map[string]any{"jsonrpc": "2.0", "method": "eth_call", "id": float64(1)}) != true {
		t.Fatalf("valid object rejected")
	}
	if validJSONRPC(map[string]any{"jsonrpc": "2.0", "method": "eth_call", "id": nil}) != true {
		t.Fatalf("null id is still present and should be accepted")
	}
	if validJSONRPC(map[string]any{"jsonrpc": "2.0", "method": ""}) {
		t.Fatalf("empty method accepted")
	}
	if validJSONRPC([]any{}) {
		t.Fatalf("empty batch accepted")
	}
	if validJSONRPC(42.0) {
		t.Fatalf("scalar accepted")
	}
}
