package main

import (
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/config"
	"github.com/vnmchuo/space-explorer/internal/provider"
	"github.com/vnmchuo/space-explorer/internal/provider/gemini"
	"github.com/vnmchuo/space-explorer/internal/provider/n2yo"
	"github.com/vnmchuo/space-explorer/internal/provider/tts"
)

type clients struct {
	position provider.PositionClient
	chat     provider.ChatClient
	speech   provider.SpeechClient
}

// newClients resolves every provider once. quota may be nil.
func newClients(cfg *config.Config, logger *zap.Logger, quota provider.Quota) clients {
	opts := func(name string, extra ...provider.Option) []provider.Option {
		return append([]provider.Option{
			provider.WithLogger(logger.Named(name)),
			provider.WithForceFallback(cfg.MockMode),
		}, extra...)
	}
	return clients{
		position: n2yo.New(cfg.N2YOAPIKey, opts(n2yo.Name)...),
		chat: gemini.New(cfg.GoogleAPIKey, opts(gemini.Name,
			provider.WithModel(cfg.GeminiModel),
			provider.WithQuota(quota),
		)...),
		speech: tts.New(cfg.TTSAPIKey, opts(tts.Name, provider.WithQuota(quota))...),
	}
}

// configured reports each client's resolved state by provider name.
func (c clients) configured() map[string]bool {
	return map[string]bool{
		c.position.Name(): c.position.Configured(),
		c.chat.Name():     c.chat.Configured(),
		c.speech.Name():   c.speech.Configured(),
	}
}
