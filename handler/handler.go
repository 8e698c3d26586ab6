// Package handler exposes the synchronizer over HTTP for thin clients.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stevemurr/story-sync/feed"
	"github.com/stevemurr/story-sync/i18n"
	"github.com/stevemurr/story-sync/report"
)

// Feed is the part of the synchronizer the handler serves.
type Feed interface {
	Load(ctx context.Context) feed.Outcome
	Save(ctx context.Context, id string) error
	Unsave(ctx context.Context, id string) error
	IsSaved(ctx context.Context, id string) bool
	ListSaved(ctx context.Context) ([]report.Report, error)
}

// Options configures a Handler.
type Options struct {
	// Locale is used when a request carries no Accept-Language header.
	Locale string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	feed   Feed
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(f Feed, opts Options) *Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{feed: f, opts: opts, logger: logger, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("GET /feed", h.getFeed)

	h.mux.HandleFunc("GET /saved", h.listSaved)
	h.mux.HandleFunc("GET /saved/{id}", h.isSaved)
	h.mux.HandleFunc("PUT /saved/{id}", h.save)
	h.mux.HandleFunc("DELETE /saved/{id}", h.unsave)

	h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// lang picks the response language: the first Accept-Language entry, else
// the configured locale.
func (h *Handler) lang(r *http.Request) string {
	if al := r.Header.Get("Accept-Language"); al != "" {
		first, _, _ := strings.Cut(al, ",")
		first, _, _ = strings.Cut(first, ";")
		if first = strings.TrimSpace(first); first != "" && first != "*" {
			return first
		}
	}
	return h.opts.Locale
}

// fail logs err and writes its localized message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, status, i18n.Error(h.lang(r), err))
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "story-sync",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- feed ----------

type feedResponse struct {
	Status     feed.Status     `json:"status"`
	Source     feed.Source     `json:"source"`
	Generation uint64          `json:"generation"`
	Reports    []report.Report `json:"reports"`
	Message    string          `json:"message,omitempty"`
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	out := h.feed.Load(r.Context())
	resp := feedResponse{
		Status:     out.Status,
		Source:     out.Source,
		Generation: out.Generation,
		Reports:    out.Reports,
	}
	if resp.Reports == nil {
		resp.Reports = []report.Report{}
	}
	if out.Status == feed.Degraded {
		resp.Message = i18n.T(h.lang(r), i18n.MsgDegraded)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------- saved ----------

func (h *Handler) listSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.feed.ListSaved(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	if saved == nil {
		saved = []report.Report{}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) isSaved(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "saved": h.feed.IsSaved(r.Context(), id)})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.feed.Save(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feed.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.fail(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "saved": true})
}

func (h *Handler) unsave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.feed.Unsave(r.Context(), id); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "saved": false})
}
