// Package tts wraps the Google Text-to-Speech REST API. Speech is a secondary
// enhancement, so unlike the other clients it reports provider problems as a
// Failure and lets the caller drop the audio.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/internal/provider"
)

const (
	Name           = "tts"
	DefaultBaseURL = "https://texttospeech.googleapis.com"
	DefaultVoice   = "en-US-Neural2-F"
	Encoding       = "MP3"
)

type TTSProvider struct {
	apiKey  string
	opts    provider.Options
	breaker *gobreaker.CircuitBreaker
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func New(apiKey string, opts ...provider.Option) provider.SpeechClient {
	o := provider.BuildOptions(DefaultBaseURL, DefaultVoice, opts...)
	if apiKey == "" || o.ForceFallback {
		o.Logger.Warn("tts not configured, speech disabled")
		return Mock{}
	}
	return &TTSProvider{
		apiKey:  apiKey,
		opts:    o,
		breaker: provider.NewBreaker(Name),
	}
}

func (p *TTSProvider) Synthesize(ctx context.Context, text string) provider.Result[provider.Audio] {
	if err := provider.Spend(ctx, p.opts.Quota, Name, p.opts.Logger); err != nil {
		return p.failure(err)
	}

	audio, err := provider.Guard(p.breaker, func() (string, error) {
		return p.synthesize(ctx, text)
	})
	if err != nil {
		return p.failure(err)
	}
	return provider.Succeeded(provider.Audio{Available: true, Data: audio, Encoding: Encoding})
}

func (p *TTSProvider) failure(err error) provider.Result[provider.Audio] {
	reason := provider.Classify(err)
	cause := provider.Redact(err)
	p.opts.Logger.Warn("tts call failed", zap.String("reason", string(reason)), zap.Error(cause))
	return provider.Failed[provider.Audio](reason, fmt.Sprintf("Text to speech failed: %s", reason))
}

func (p *TTSProvider) synthesize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.Timeout)
	defer cancel()

	body, err := json.Marshal(p.mapRequest(text))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/text:synthesize", p.opts.BaseURL)
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

	var ttsResp synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ttsResp); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	if ttsResp.AudioContent == "" {
		return "", fmt.Errorf("%w: no audio data returned", provider.ErrMalformedResponse)
	}
	if _, err := base64.StdEncoding.DecodeString(ttsResp.AudioContent); err != nil {
		return "", fmt.Errorf("%w: audio is not base64: %v", provider.ErrMalformedResponse, err)
	}
	return ttsResp.AudioContent, nil
}

func (p *TTSProvider) mapRequest(text string) synthesizeRequest {
	return synthesizeRequest{
		Input: synthesisInput{Text: text},
		Voice: voiceSelection{
			LanguageCode: "en-US",
			Name:         p.opts.Model,
			SSMLGender:   "FEMALE",
		},
		AudioConfig: audioConfig{
			AudioEncoding: Encoding,
			SpeakingRate:  1.0,
			Pitch:         2.0,
		},
	}
}

func (p *TTSProvider) Name() string {
	return Name
}

func (p *TTSProvider) Configured() bool {
	return true
}

// Mock reports speech as unavailable without touching the network.
type Mock struct{}

func (Mock) Synthesize(context.Context, string) provider.Result[provider.Audio] {
	return provider.FellBack(provider.Audio{Available: false, Encoding: Encoding}, provider.ReasonNotConfigured)
}

func (Mock) Name() string     { return Name }
func (Mock) Configured() bool { return false }
