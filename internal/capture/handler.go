package capture

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hooky/internal/events"
	hlog "github.com/mattjoyce/hooky/internal/log"
	"github.com/mattjoyce/hooky/internal/metrics"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

const (
	msgTooLarge    = "Payload Too Large"
	msgUnsupported = "Binary content types are not supported"
	msgInternal    = "Internal Server Error"
)

// Handler serves /capture/{token}.
type Handler struct {
	cfg       Config
	webhooks  WebhookLookup
	db        *storage.DB
	store     *store.Store
	publisher Publisher
	replies   ReplyResolver
	logger    *slog.Logger
}

// New builds a Handler. publisher may be nil, in which case nothing is
// broadcast.
func New(cfg Config, webhooks WebhookLookup, db *storage.DB, s *store.Store, publisher Publisher, replies ReplyResolver, logger *slog.Logger) *Handler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	return &Handler{
		cfg:       cfg,
		webhooks:  webhooks,
		db:        db,
		store:     s,
		publisher: publisher,
		replies:   replies,
		logger:    logger,
	}
}

// Mount registers the handler for every capture method on r.
func (h *Handler) Mount(r chi.Router) {
	for _, m := range Methods {
		r.MethodFunc(m, "/capture/{token}", h.ServeHTTP)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	wh, err := h.webhooks.LookupByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			metrics.Captures.WithLabelValues(metrics.OutcomeNotFound).Inc()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Error("capture lookup failed", "token", token, "error", err)
		h.fail(w)
		return
	}
	if !wh.IsEnabled {
		metrics.Captures.WithLabelValues(metrics.OutcomeNotFound).Inc()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	logger := hlog.WithWebhook(h.logger, wh.ID, wh.Token)

	if err := h.precheck(r); err != nil {
		h.reject(w, err)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			h.reject(w, err)
			return
		}
		logger.Warn("capture body read failed", "method", r.Method, "error", err)
		h.fail(w)
		return
	}

	captured := h.extract(r, wh, body)
	if err := h.store.Requests.Create(ctx, h.db, captured); err != nil {
		logger.Error("failed to record capture", "method", r.Method, "error", err)
		h.fail(w)
		return
	}
	metrics.Captures.WithLabelValues(metrics.OutcomeCaptured).Inc()
	metrics.CaptureBodyBytes.Observe(float64(len(body)))

	h.broadcast(logger, captured)

	reply, err := h.replies.Resolve(ctx, wh.ID)
	if err != nil {
		logger.Error("failed to resolve reply", "request_id", captured.ID, "error", err)
		h.fail(w)
		return
	}

	logger.Debug("request captured",
		"request_id", captured.ID,
		"method", captured.Method,
		"bytes", len(body),
		"status", reply.StatusCode,
	)

	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(reply.StatusCode)
	if r.Method != http.MethodHead && reply.Body != "" {
		_, _ = io.WriteString(w, reply.Body)
	}
}

// precheck applies the gates that need only the request line and headers.
func (h *Handler) precheck(r *http.Request) error {
	if h.isBinary(r.Header.Get("Content-Type")) {
		return ErrUnsupportedMedia
	}
	if r.ContentLength > h.cfg.MaxBodyBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		metrics.Captures.WithLabelValues(metrics.OutcomeUnsupported).Inc()
		respondError(w, http.StatusUnsupportedMediaType, msgUnsupported)
	case errors.Is(err, ErrPayloadTooLarge):
		metrics.Captures.WithLabelValues(metrics.OutcomeTooLarge).Inc()
		respondError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
	default:
		h.fail(w)
	}
}

func (h *Handler) isBinary(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	for _, p := range h.cfg.BinaryPrefixes {
		if p != "" && strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// readBody reads the body under the read deadline, returning
// ErrPayloadTooLarge once more than MaxBodyBytes arrive.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	rc := http.NewResponseController(w)
	deadline := true
	if err := rc.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		if !errors.Is(err, http.ErrNotSupported) {
			return nil, err
		}
		deadline = false
	}

	// On failure the deadline stays armed so the server's drain of the
	// unread body cannot block after the reply.
	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		w.Header().Set("Connection", "close")
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, errors.New("body read timed out")
		}
		return nil, err
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return nil, ErrPayloadTooLarge
	}
	if deadline {
		_ = rc.SetReadDeadline(time.Time{})
	}
	return body, nil
}

func (h *Handler) extract(r *http.Request, wh *store.Webhook, body []byte) *store.CapturedRequest {
	req := &store.CapturedRequest{
		WebhookID:    wh.ID,
		WebhookToken: wh.Token,
		Method:       r.Method,
		Headers:      h.headers(r),
		QueryParams:  queryParams(r),
		CapturedAt:   storage.Now(),
		SourceIP:     sourceIP(r),
	}
	if len(body) > 0 {
		text := strings.ToValidUTF8(string(body), "�")
		req.Body = &text
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.UserAgent = &ua
	}
	return req
}

// headers flattens r's headers with lowercase names, dropping excluded
// prefixes. Repeated headers are joined with ", ".
func (h *Handler) headers(r *http.Request) store.StringMap {
	out := make(store.StringMap, len(r.Header)+1)
	if r.Host != "" {
		out["host"] = r.Host
	}
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if h.excluded(lower) {
			continue
		}
		out[lower] = strings.Join(values, ", ")
	}
	return out
}

func (h *Handler) excluded(name string) bool {
	for _, p := range h.cfg.ExcludedHeaderPrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func queryParams(r *http.Request) store.StringMap {
	q := r.URL.Query()
	out := make(store.StringMap, len(q))
	for k, vs := range q {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

// sourceIP prefers the first X-Forwarded-For hop, then X-Real-Ip.
func sourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	return UnknownIP
}

func (h *Handler) broadcast(logger *slog.Logger, req *store.CapturedRequest) {
	if h.publisher == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("broadcast panicked", "request_id", req.ID, "panic", rec)
		}
	}()
	if _, err := h.publisher.Publish(req.WebhookID, events.TypeNewRequest, req); err != nil {
		logger.Warn("broadcast failed", "request_id", req.ID, "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter) {
	metrics.Captures.WithLabelValues(metrics.OutcomeError).Inc()
	respondError(w, http.StatusInternalServerError, msgInternal)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
