package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/internal/conversation"
	"github.com/vnmchuo/space-explorer/internal/provider"
)

const (
	Name           = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	MockAnswer    = "This is a demo response. Please configure your Google API key to use real Gemini AI."
	TroubleAnswer = "Sorry, I had trouble thinking of an answer right now. Can you try asking again?"
)

type GeminiProvider struct {
	apiKey  string
	opts    provider.Options
	breaker *gobreaker.CircuitBreaker
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

// New returns the conversational client. Without a key, or when fallback is
// forced, the returned client never touches the network.
func New(apiKey string, opts ...provider.Option) provider.ChatClient {
	o := provider.BuildOptions(DefaultBaseURL, DefaultModel, opts...)
	if apiKey == "" || o.ForceFallback {
		o.Logger.Warn("gemini not configured, answering with mock responses")
		return Mock{}
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		opts:    o,
		breaker: provider.NewBreaker(Name),
	}
}

func (p *GeminiProvider) Ask(ctx context.Context, question string, history []conversation.Turn) provider.Result[provider.Answer] {
	if err := provider.Spend(ctx, p.opts.Quota, Name, p.opts.Logger); err != nil {
		return p.fallback(err)
	}

	prompt := conversation.BuildPrompt(conversation.Persona, history, question)
	text, err := provider.Guard(p.breaker, func() (string, error) {
		return p.generate(ctx, prompt)
	})
	if err != nil {
		return p.fallback(err)
	}
	return provider.Succeeded(provider.Answer{Text: text})
}

func (p *GeminiProvider) fallback(err error) provider.Result[provider.Answer] {
	reason := provider.Classify(err)
	p.opts.Logger.Warn("gemini call failed, using fallback answer",
		zap.String("reason", string(reason)),
		zap.Error(provider.Redact(err)))
	return provider.FellBack(provider.Answer{Text: TroubleAnswer}, reason)
}

func (p *GeminiProvider) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.Timeout)
	defer cancel()

	body, err := json.Marshal(p.mapRequest(prompt))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.opts.BaseURL, p.opts.Model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &provider.StatusError{Provider: Name, Code: resp.StatusCode, Body: string(respBody)}
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini api returned no candidates", provider.ErrMalformedResponse)
	}

	text := strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: gemini api returned empty text", provider.ErrMalformedResponse)
	}
	return text, nil
}

func (p *GeminiProvider) mapRequest(prompt string) geminiRequest {
	return geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: 256,
			Temperature:     0.7,
		},
	}
}

func (p *GeminiProvider) Name() string {
	return Name
}

func (p *GeminiProvider) Configured() bool {
	return true
}

// Mock is the fallback-only client used when no key is configured.
type Mock struct{}

func (Mock) Ask(context.Context, string, []conversation.Turn) provider.Result[provider.Answer] {
	return provider.FellBack(provider.Answer{Text: MockAnswer}, provider.ReasonNotConfigured)
}

func (Mock) Name() string     { return Name }
func (Mock) Configured() bool { return false }
