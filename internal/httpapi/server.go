// Package httpapi mirrors the bridge over HTTP: JSON queries, server-sent
// event channels and journal history.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	defaultHistoryWindow = 24 * time.Hour
	maxHistoryWindow     = 366 * 24 * time.Hour
	// sseBuffer bounds events queued for a slow client before they drop.
	sseBuffer = 64
)

// Server is the HTTP mirror of the bridge.
type Server struct {
	bridge         *bridge.Bridge
	log            *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new HTTP mirror.
func NewServer(b *bridge.Bridge, logger *slog.Logger) *Server {
	return &Server{bridge: b, log: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/methods", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"methods": s.bridge.Methods()})
		})
		r.Get("/query/{method}", s.handleQuery)
		r.Get("/score", s.handleScore)
		r.Get("/subscriptions", s.handleSubscriptions)
		r.Get("/subscriptions/history", s.handleSubscriptionHistory)
		// Channel names contain a slash, so they are matched as a wildcard.
		r.Get("/events/*", s.handleEvents)
		r.Get("/history/*", s.handleHistory)
		r.Get("/latest/*", s.handleLatest)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	v, err := s.bridge.Call(method)
	if err != nil {
		writeRecord(w, telemetry.NewErrorRecord(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": v})
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	for channel, id := range s.bridge.Active() {
		out[channel] = id.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents streams one channel as server-sent events. The stream opens
// with a "subscription" event carrying the id and capability, then one
// "event" per value. It closes with "end" when the subscription is replaced
// or cancelled, and cancels it when the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, telemetry.CodeInternal, "streaming not supported")
		return
	}

	events := make(chan bridge.Event, sseBuffer)
	sub, err := s.bridge.Listen(channel, func(e bridge.Event) {
		select {
		case events <- e:
		default:
			s.log.Warn("sse client too slow, event dropped", "channel", e.Channel, "id", e.SubscriptionID)
		}
	})
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "subscription", map[string]string{
		"id":         sub.ID.String(),
		"channel":    sub.Channel,
		"capability": sub.Capability.String(),
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			if _, err := s.bridge.Cancel(channel, sub.ID); err != nil {
				s.log.Warn("cancel sse subscription", "channel", channel, "err", err)
			}
			return
		case e := <-events:
			writeEvent(w, "event", e)
			flusher.Flush()
		case <-sub.Done:
			drain(w, events)
			writeEvent(w, "end", map[string]string{"id": sub.ID.String()})
			flusher.Flush()
			return
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "*")

	from, to, err := historyRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgs", err.Error())
		return
	}

	events, err := s.bridge.History(channel, from, to)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"from":    from,
		"to":      to,
		"events":  events,
	})
}

// handleLatest returns the newest journaled event; "event" is null when the
// channel has none yet.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "*")
	e, err := s.bridge.Latest(channel)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "event": e})
}

func (s *Server) handleSubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := historyRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgs", err.Error())
		return
	}
	subs, err := s.bridge.SubscriptionHistory(from, to)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":          from,
		"to":            to,
		"subscriptions": subs,
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	preds, err := s.bridge.ScoreBreakdown()
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predicates": preds})
}

// historyRange reads from and to (unix milliseconds) from the query string.
// to defaults to now and from to one day before to.
func historyRange(r *http.Request, now time.Time) (int64, int64, error) {
	q := r.URL.Query()

	to := now.UnixMilli()
	if v := q.Get("to"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid to %q", v)
		}
		to = parsed
	}
	from := to - defaultHistoryWindow.Milliseconds()
	if v := q.Get("from"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid from %q", v)
		}
		from = parsed
	}

	if from < 0 {
		from = 0
	}
	if to < from {
		return 0, 0, fmt.Errorf("to must not be before from")
	}
	if to-from > maxHistoryWindow.Milliseconds() {
		return 0, 0, fmt.Errorf("range exceeds one year")
	}
	return from, to, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// statusFor maps an error record code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case telemetry.CodeNotImplemented:
		return http.StatusNotFound
	case telemetry.CodeUnsupported, telemetry.CodeUnavailable:
		return http.StatusServiceUnavailable
	case telemetry.CodeDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeBridgeError(w http.ResponseWriter, err error) {
	if errors.Is(err, bridge.ErrUnknownChannel) {
		writeError(w, http.StatusNotFound, "UnknownChannel", err.Error())
		return
	}
	writeRecord(w, telemetry.NewErrorRecord(err))
}

func writeRecord(w http.ResponseWriter, rec *telemetry.ErrorRecord) {
	writeJSON(w, statusFor(rec.Code), map[string]any{"error": rec})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": &telemetry.ErrorRecord{Code: code, Message: msg}})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// drain writes events delivered before the subscription ended.
func drain(w http.ResponseWriter, events <-chan bridge.Event) {
	for {
		select {
		case e := <-events:
			writeEvent(w, "event", e)
		default:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
