package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnmchuo/space-explorer/internal/conversation"
	"github.com/vnmchuo/space-explorer/internal/provider"
)

func answerServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{
					Content: geminiContent{
						Parts: []geminiPart{{Text: text}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAsk_Mock(t *testing.T) {
	var captured geminiRequest
	var path, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Stars shine because of fusion!  "}]}}]}`))
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))
	history := []conversation.Turn{{Question: "Hi", Response: "Hello, explorer!"}}

	res := p.Ask(context.Background(), "What makes stars shine?", history)
	if res.Kind != provider.Success {
		t.Fatalf("Expected success, got %s (%s)", res.Kind, res.Reason)
	}
	if res.Payload.Text != "Stars shine because of fusion!" {
		t.Errorf("Expected trimmed answer, got %q", res.Payload.Text)
	}
	if path != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("Unexpected path %s", path)
	}
	if key != "test-key" {
		t.Errorf("Expected api key header, got %q", key)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 1 {
		t.Fatalf("Expected a single prompt part, got %+v", captured.Contents)
	}
	prompt := captured.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "Previous conversation:") || !strings.HasSuffix(prompt, "Child: What makes stars shine?\nSpace Guide:") {
		t.Errorf("Unexpected prompt %q", prompt)
	}
}

func TestAsk_ModelOption(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	p := New("k", provider.WithBaseURL(server.URL), provider.WithModel("gemini-1.5-flash"))
	p.Ask(context.Background(), "hi", nil)

	if path != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("Unexpected path %s", path)
	}
}

func TestAsk_Unconfigured(t *testing.T) {
	p := New("")
	if p.Configured() {
		t.Error("Expected unconfigured client")
	}

	first := p.Ask(context.Background(), "What makes stars shine?", nil)
	second := p.Ask(context.Background(), "Why is Mars red?", nil)

	if first.Kind != provider.Fallback || first.Reason != provider.ReasonNotConfigured {
		t.Fatalf("Expected not_configured fallback, got %+v", first)
	}
	if first.Payload != second.Payload || first.Payload.Text != MockAnswer {
		t.Errorf("Expected identical mock payloads, got %q and %q", first.Payload.Text, second.Payload.Text)
	}
}

func TestAsk_ForceFallbackSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	p := New("key", provider.WithBaseURL(server.URL), provider.WithForceFallback(true))
	res := p.Ask(context.Background(), "hi", nil)

	if res.Kind != provider.Fallback || hits.Load() != 0 {
		t.Errorf("Expected fallback without network, got %s and %d hits", res.Kind, hits.Load())
	}
}

func TestAsk_BadStatusFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	res := New("k", provider.WithBaseURL(server.URL)).Ask(context.Background(), "hi", nil)

	if res.Kind != provider.Fallback || res.Reason != provider.ReasonBadStatus {
		t.Fatalf("Expected bad_status fallback, got %+v", res)
	}
	if res.Payload.Text != TroubleAnswer {
		t.Errorf("Expected trouble answer, got %q", res.Payload.Text)
	}
}

func TestAsk_NoCandidatesFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	res := New("k", provider.WithBaseURL(server.URL)).Ask(context.Background(), "hi", nil)

	if res.Kind != provider.Fallback || res.Reason != provider.ReasonMalformed {
		t.Errorf("Expected malformed_response fallback, got %+v", res)
	}
}

func TestAsk_TimeoutFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	p := New("k",
		provider.WithBaseURL(server.URL),
		provider.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	res := p.Ask(context.Background(), "hi", nil)

	if res.Kind != provider.Fallback || res.Reason != provider.ReasonTimeout {
		t.Errorf("Expected timeout fallback, got %+v", res)
	}
}

func TestAsk_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := New("k", provider.WithBaseURL(server.URL))
	for i := 0; i < 3; i++ {
		p.Ask(context.Background(), "hi", nil)
	}
	res := p.Ask(context.Background(), "hi", nil)

	if res.Reason != provider.ReasonCircuitOpen {
		t.Errorf("Expected circuit_open, got %s", res.Reason)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 upstream hits, got %d", hits.Load())
	}
}

type denyQuota struct{}

func (denyQuota) Allow(context.Context, string) (bool, error) { return false, nil }

func TestAsk_QuotaExhaustedFallsBack(t *testing.T) {
	server := answerServer(t, "never")
	defer server.Close()

	p := New("k", provider.WithBaseURL(server.URL), provider.WithQuota(denyQuota{}))
	res := p.Ask(context.Background(), "hi", nil)

	if res.Kind != provider.Fallback || res.Reason != provider.ReasonQuotaExhausted {
		t.Errorf("Expected quota_exhausted fallback, got %+v", res)
	}
}

func TestName(t *testing.T) {
	if New("key").Name() != "gemini" || New("").Name() != "gemini" {
		t.Error("Expected 'gemini' for both client states")
	}
}
