package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes mounts every dispatcher operation on a chi router. RemoteAddr is left
// untouched; forwarded headers are honoured only for trusted proxies.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"space-explorer"}`))
	})
	r.Get("/test", h.HandleStatus)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/iss-position", h.HandlePosition)
		r.Post("/ask", h.HandleAsk)
		r.Post("/ask-with-voice", h.HandleAskWithVoice)
	})

	return r
}
