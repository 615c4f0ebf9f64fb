package dispatch

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/internal/conversation"
	"github.com/vnmchuo/space-explorer/internal/governor"
	"github.com/vnmchuo/space-explorer/internal/provider"
	"github.com/vnmchuo/space-explorer/internal/provider/n2yo"
)

// maxBodyBytes caps an ask request body.
const maxBodyBytes = 64 << 10

// StatusInfo is the deployment state the introspection routes report next to
// the clients' own configured flags. It never carries credential values.
type StatusInfo struct {
	MockMode       bool
	RateLimitStore string
}

type Handler struct {
	governor *governor.Governor
	position provider.PositionClient
	chat     provider.ChatClient
	speech   provider.SpeechClient
	status   StatusInfo
	tracer   trace.Tracer
	logger   *zap.Logger
	trusted  []netip.Prefix
}

type Option func(*Handler)

// WithTrustedProxies lets the listed peers name the client via
// X-Forwarded-For. Without it identity is always the connection's address.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(h *Handler) { h.trusted = prefixes }
}

func NewHandler(
	gov *governor.Governor,
	position provider.PositionClient,
	chat provider.ChatClient,
	speech provider.SpeechClient,
	status StatusInfo,
	tracer trace.Tracer,
	logger *zap.Logger,
	opts ...Option,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		governor: gov,
		position: position,
		chat:     chat,
		speech:   speech,
		status:   status,
		tracer:   tracer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type askRequest struct {
	Question string              `json:"question"`
	History  []conversation.Turn `json:"history"`
}

type positionResponse struct {
	Status         string  `json:"status"`
	SatelliteName  string  `json:"satellite_name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AltitudeKm     float64 `json:"altitude_km"`
	Timestamp      int64   `json:"timestamp"`
	Source         string  `json:"source"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

type askResponse struct {
	Status         string `json:"status"`
	Response       string `json:"response"`
	Source         string `json:"source"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

type askWithVoiceResponse struct {
	askResponse
	AudioAvailable bool   `json:"audio_available"`
	AudioData      string `json:"audio_data,omitempty"`
	AudioSource    string `json:"audio_source,omitempty"`
	AudioMessage   string `json:"audio_message,omitempty"`
}

func (h *Handler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	ctx, span, ok := h.admit(w, r, "dispatch.position", governor.GroupPosition)
	if !ok {
		return
	}
	defer span.End()

	res := h.position.Position(ctx, parseCoordinates(r))
	source := sourceOf(res.Kind, h.position.Name())
	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("kind", res.Kind.String()),
	)

	writeJSON(w, http.StatusOK, positionResponse{
		Status:         "success",
		SatelliteName:  res.Payload.SatelliteName,
		Latitude:       res.Payload.Latitude,
		Longitude:      res.Payload.Longitude,
		AltitudeKm:     res.Payload.AltitudeKm,
		Timestamp:      res.Payload.Timestamp,
		Source:         source,
		FallbackReason: string(res.Reason),
	})
}

func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, span, ok := h.admit(w, r, "dispatch.ask", governor.GroupChat)
	if !ok {
		return
	}
	defer span.End()

	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	answer := h.answer(ctx, span, req)
	writeJSON(w, http.StatusOK, answer)
}

// HandleAskWithVoice answers the question and then speaks the answer. It is
// charged to both the speech and the chat budgets since it calls both
// providers. Speech problems drop the audio and never the answer.
func (h *Handler) HandleAskWithVoice(w http.ResponseWriter, r *http.Request) {
	ctx, span, ok := h.admit(w, r, "dispatch.ask_with_voice", governor.GroupSpeech, governor.GroupChat)
	if !ok {
		return
	}
	defer span.End()

	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	answer := h.answer(ctx, span, req)
	resp := askWithVoiceResponse{askResponse: answer}

	audio := h.speech.Synthesize(ctx, answer.Response)
	switch {
	case audio.Kind == provider.Success && audio.Payload.Available:
		resp.AudioAvailable = true
		resp.AudioData = audio.Payload.Data
		resp.AudioSource = h.speech.Name()
	case audio.Kind == provider.Failure:
		resp.AudioMessage = audio.Message
	default:
		resp.AudioMessage = "Voice is not available right now"
	}
	span.SetAttributes(
		attribute.Bool("audio_available", resp.AudioAvailable),
		attribute.String("audio_kind", audio.Kind.String()),
	)

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) answer(ctx context.Context, span trace.Span, req askRequest) askResponse {
	res := h.chat.Ask(ctx, req.Question, req.History)
	source := sourceOf(res.Kind, h.chat.Name())
	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("kind", res.Kind.String()),
	)

	return askResponse{
		Status:         "success",
		Response:       res.Payload.Text,
		Source:         source,
		FallbackReason: string(res.Reason),
	}
}

// HandleStatus serves both /api/status and /test.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	limits := make(map[string][]string)
	for _, group := range []governor.Group{governor.GroupPosition, governor.GroupChat, governor.GroupSpeech} {
		windows := h.governor.Policy(group)
		described := make([]string, 0, len(windows))
		for _, win := range windows {
			described = append(described, win.String())
		}
		limits[string(group)] = described
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"message":          "Space Explorer is running!",
		"apis_configured": map[string]bool{
			h.position.Name(): h.position.Configured(),
			h.chat.Name():     h.chat.Configured(),
			h.speech.Name():   h.speech.Configured(),
		},
		"mock_mode":        h.status.MockMode,
		"rate_limit_store": h.status.RateLimitStore,
		"rate_limits":      limits,
	})
}

// admit runs admission control before anything else looks at the request. The
// groups are charged in order and the first rejection stops the check; budgets
// already charged by this request stay charged. On rejection the 429 has
// already been written and ok is false.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, op string, groups ...governor.Group) (context.Context, trace.Span, bool) {
	identity := clientIdentity(r, h.trusted)
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ctx, span := h.tracer.Start(r.Context(), op)
	span.SetAttributes(
		attribute.String("identity", identity),
		attribute.String("request_id", requestID),
	)

	for _, group := range groups {
		decision := h.governor.CheckAndRecord(ctx, identity, group)
		if decision.Allowed {
			continue
		}
		seconds := retryAfterSeconds(decision.RetryAfter)
		span.SetAttributes(
			attribute.String("rejected_group", string(group)),
			attribute.Int64("retry_after", seconds),
		)
		span.End()

		h.logger.Debug("request rate limited",
			zap.String("request_id", requestID),
			zap.String("group", string(group)),
			zap.Int64("retry_after", seconds))

		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"status":      "error",
			"message":     "Too many requests. Please slow down and try again soon.",
			"retry_after": seconds,
		})
		return nil, nil, false
	}
	return ctx, span, true
}

func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "Please ask a question")
		return req, false
	}
	return req, true
}

// parseCoordinates reads the optional observer location. A missing or
// unusable value falls back to the default observer's component.
func parseCoordinates(r *http.Request) provider.Coordinates {
	at := n2yo.DefaultObserver
	q := r.URL.Query()

	if lat, ok := parseDegrees(q.Get("lat"), 90); ok {
		at.Latitude = lat
	}
	if lng, ok := parseDegrees(q.Get("lng"), 180); ok {
		at.Longitude = lng
	}
	return at
}

func parseDegrees(v string, limit float64) (float64, bool) {
	if v == "" {
		return 0, false
	}
	deg, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(deg) || deg < -limit || deg > limit {
		return 0, false
	}
	return deg, true
}

func sourceOf(kind provider.Kind, name string) string {
	if kind == provider.Success {
		return name
	}
	return provider.SourceFallback
}

// retryAfterSeconds rounds up so a client that waits exactly this long is
// admitted.
func retryAfterSeconds(d time.Duration) int64 {
	seconds := int64(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{
		"status":  "error",
		"message": message,
	})
}
