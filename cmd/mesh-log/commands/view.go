// Package commands implements the mesh-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
	"github.com/mash-protocol/meshmodel/pkg/sensor"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// sigVendor marks a SIG-defined model in Event.Vendor.
const sigVendor = 0xffff

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event meshlog.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)

	fmt.Fprintf(w, "%s [node:%s] %-3s %s %s", ts, shortenNodeID(event.NodeID),
		event.Direction, event.Layer, eventLabel(event))
	if event.Element != nil {
		fmt.Fprintf(w, " ele=%d", *event.Element)
	}
	if event.Model != nil {
		fmt.Fprintf(w, " model=%s", modelName(event.Model, event.Vendor))
	}
	fmt.Fprintln(w)

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Direction, event.Message)
	case event.Config != nil:
		formatConfigDetails(w, event.Config)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventLabel names the event for the header line.
func eventLabel(event meshlog.Event) string {
	switch {
	case event.Message != nil:
		if event.Message.Opcode != nil {
			return opcodeName(*event.Message.Opcode)
		}
		return "Message"
	case event.Config != nil:
		return "Config"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenNodeID returns the first 8 characters of the node UUID.
func shortenNodeID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

var opcodeNames = map[uint32]string{
	uint32(codec.OpOnOffGet):      "OnOffGet",
	uint32(codec.OpOnOffSet):      "OnOffSet",
	uint32(codec.OpOnOffSetUnack): "OnOffSetUnack",
	uint32(codec.OpOnOffStatus):   "OnOffStatus",
	uint32(codec.OpSensorGet):     "SensorGet",
	uint32(codec.OpSensorStatus):  "SensorStatus",
}

// opcodeName returns the symbolic opcode name, or its hex value.
func opcodeName(op uint32) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	if op > 0xffff {
		return fmt.Sprintf("Vendor(0x%06x)", op)
	}
	return fmt.Sprintf("0x%04x", op)
}

var modelNames = map[uint16]string{
	onoff.ServerModelID:       "OnOffServer",
	onoff.ClientModelID:       "OnOffClient",
	sensor.ServerModelID:      "SensorServer",
	sensor.SetupServerModelID: "SensorSetupServer",
	sensor.ClientModelID:      "SensorClient",
}

// modelName formats a model identity, naming the SIG models this module
// implements.
func modelName(id, vendor *uint16) string {
	if vendor != nil && *vendor != sigVendor {
		return fmt.Sprintf("0x%04x:0x%04x", *vendor, *id)
	}
	if name, ok := modelNames[*id]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", *id)
}

func formatMessageDetails(w io.Writer, dir meshlog.Direction, msg *meshlog.MessageEvent) {
	var addr []string
	if dir == meshlog.DirectionIn {
		addr = append(addr, fmt.Sprintf("src=%04x", msg.Source))
	}
	if msg.Destination != "" {
		addr = append(addr, "dst="+msg.Destination)
	}
	addr = append(addr, fmt.Sprintf("key=%d", msg.KeyIndex))
	fmt.Fprintf(w, "  %s\n", strings.Join(addr, " "))

	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", hex.EncodeToString(msg.Payload))
	}
	if msg.Opcode != nil {
		formatDecoded(w, *msg.Opcode, msg.Payload)
	}
}

// formatDecoded prints the decoded parameters of the messages this module
// understands. Frames that fail to decode are left as raw payload.
func formatDecoded(w io.Writer, op uint32, payload []byte) {
	switch op {
	case uint32(codec.OpOnOffGet), uint32(codec.OpOnOffSet),
		uint32(codec.OpOnOffSetUnack), uint32(codec.OpOnOffStatus):
		m, ok := codec.DecodeOnOff(payload)
		if !ok {
			return
		}
		if m.Opcode == codec.OpOnOffGet {
			return
		}
		fmt.Fprintf(w, "  State: %s", onoff.State(m.State))
		if m.Opcode != codec.OpOnOffStatus {
			fmt.Fprintf(w, " tid=%d", m.TID)
		}
		fmt.Fprintln(w)

	case uint32(codec.OpSensorGet):
		id, err := codec.DecodeSensorGet(payload)
		if err != nil {
			return
		}
		if id == 0 {
			fmt.Fprintln(w, "  Property: all")
		} else {
			fmt.Fprintf(w, "  Property: 0x%04x\n", id)
		}

	case uint32(codec.OpSensorStatus):
		props, err := codec.DecodeSensorStatus(payload)
		for _, p := range props {
			fmt.Fprintf(w, "  Property 0x%04x: %s\n", p.ID, hex.EncodeToString(p.Value))
		}
		if err != nil {
			fmt.Fprintf(w, "  Decode: %v\n", err)
		}
	}
}

func formatConfigDetails(w io.Writer, cfg *meshlog.ConfigEvent) {
	if cfg.Bindings != nil {
		fmt.Fprintf(w, "  Bindings: %v\n", cfg.Bindings)
	}
	if cfg.Subscriptions != nil {
		fmt.Fprintf(w, "  Subscriptions: %s\n", strings.Join(cfg.Subscriptions, ", "))
	}
	if cfg.PublicationPeriod != nil {
		if *cfg.PublicationPeriod == 0 {
			fmt.Fprintln(w, "  Publication: disabled")
		} else {
			fmt.Fprintf(w, "  Publication: every %dms\n", *cfg.PublicationPeriod)
		}
	}
}

func formatStateChangeDetails(w io.Writer, sc *meshlog.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *meshlog.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// RunView prints every event matching filter.
func RunView(path string, filter meshlog.Filter, output io.Writer) error {
	reader, err := meshlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
