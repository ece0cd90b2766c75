package log

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// SlogAdapter mirrors capture events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as a single "mesh" record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node", event.NodeID))
	}
	if event.Element != nil {
		attrs = append(attrs, slog.Int("element", int(*event.Element)))
	}
	if event.Model != nil {
		attrs = append(attrs, slog.String("model", fmt.Sprintf("0x%04x", *event.Model)))
	}
	if event.Vendor != nil && *event.Vendor != 0xffff {
		attrs = append(attrs, slog.String("vendor", fmt.Sprintf("0x%04x", *event.Vendor)))
	}

	switch {
	case event.Message != nil:
		m := event.Message
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.String("src", fmt.Sprintf("%04x", m.Source)))
		}
		if m.Destination != "" {
			attrs = append(attrs, slog.String("dst", m.Destination))
		}
		attrs = append(attrs, slog.Int("key", int(m.KeyIndex)))
		if m.Opcode != nil {
			attrs = append(attrs, slog.String("opcode", fmt.Sprintf("0x%x", *m.Opcode)))
		}
		attrs = append(attrs, slog.String("payload", hex.EncodeToString(m.Payload)))
	case event.Config != nil:
		c := event.Config
		if c.Bindings != nil {
			attrs = append(attrs, slog.Any("bindings", c.Bindings))
		}
		if c.Subscriptions != nil {
			attrs = append(attrs, slog.Any("subscriptions", c.Subscriptions))
		}
		if c.PublicationPeriod != nil {
			attrs = append(attrs, slog.Uint64("pub_period_ms", uint64(*c.PublicationPeriod)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "mesh", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
