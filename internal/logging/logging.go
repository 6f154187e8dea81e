package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Topics used across the daemon.
const (
	TopicBattery      = "battery"
	TopicPower        = "power"
	TopicThermal      = "thermal"
	TopicDevice       = "device"
	TopicConnectivity = "connectivity"
	TopicBridge       = "bridge"
	TopicJournal      = "journal"
)

// TopicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled or they are
// warnings or worse.
type TopicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

// NewTopicHandler enables the given topics; "all" enables every topic.
func NewTopicHandler(inner slog.Handler, topics map[string]bool) *TopicHandler {
	return &TopicHandler{inner: inner, topics: topics}
}

func (h *TopicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TopicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		// Check record-level attrs as fallback.
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] && r.Level < slog.LevelWarn {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *TopicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &TopicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *TopicHandler) WithGroup(name string) slog.Handler {
	return &TopicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

// ParseTopics turns the -log flag value into an enabled-topic set. verbose
// enables everything.
func ParseTopics(list string, verbose bool) map[string]bool {
	topics := make(map[string]bool)
	if verbose {
		topics["all"] = true
	}
	if list != "" {
		for _, t := range strings.Split(list, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics[t] = true
			}
		}
	}
	return topics
}

// New builds the daemon logger: a debug-level text handler on w behind the
// topic filter.
func New(w io.Writer, topics map[string]bool) *slog.Logger {
	return slog.New(NewTopicHandler(
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics,
	))
}
