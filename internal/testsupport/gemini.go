package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// ValidModelJSON is a model reply that passes result validation.
const ValidModelJSON = `{"vehicleCount":12,"trafficDensity":"Light","averageSpeed":48,"congestionLevel":15,"detectedVehicles":[{"type":"Car","count":10,"confidence":0.9},{"type":"Bus","count":2,"confidence":0.8}],"flowRate":9,"anomalies":[],"processingQuality":"High","insights":["Traffic is light"]}`

// GeminiStub imitates the generateContent endpoint. A 200 status wraps text
// in a candidates envelope; any other status writes text verbatim.
type GeminiStub struct {
	server *httptest.Server
	hits   atomic.Int32
}

// NewGeminiStub starts a stub server that is closed with the test.
func NewGeminiStub(t testing.TB, status int, text string) *GeminiStub {
	t.Helper()
	stub := &GeminiStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(text))
			return
		}
		payload := map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
		}}}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

// URL is the base URL to configure as gemini.base_url.
func (s *GeminiStub) URL() string { return s.server.URL }

// Client returns an HTTP client that trusts the stub.
func (s *GeminiStub) Client() *http.Client { return s.server.Client() }

// Hits reports how many requests the stub has served.
func (s *GeminiStub) Hits() int { return int(s.hits.Load()) }
