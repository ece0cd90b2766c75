package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

func TestStats(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	at := func(e meshlog.Event, offset time.Duration) meshlog.Event {
		e.Timestamp = base.Add(offset)
		return e
	}

	events := []meshlog.Event{
		at(meshlog.Event{
			NodeID:      testNode,
			Layer:       meshlog.LayerApplication,
			Category:    meshlog.CategoryState,
			StateChange: &meshlog.StateChangeEvent{Entity: meshlog.StateEntityNode, NewState: "JOINED"},
		}, 0),
		at(meshlog.Event{
			NodeID:      testNode,
			Layer:       meshlog.LayerApplication,
			Category:    meshlog.CategoryState,
			StateChange: &meshlog.StateChangeEvent{Entity: meshlog.StateEntityNode, OldState: "JOINED", NewState: "ATTACHED"},
		}, time.Second),
		at(messageEvent(meshlog.DirectionIn, 0, 0x1000, codec.EncodeOnOffSet(1, 0, true)), 2*time.Second),
		at(messageEvent(meshlog.DirectionOut, 0, 0x1000, codec.EncodeOnOffStatus(1)), 2*time.Second),
		at(messageEvent(meshlog.DirectionIn, 2, 0x1001, codec.EncodeOnOffStatus(1)), 3*time.Second),
		at(meshlog.Event{
			NodeID:   testNode,
			Layer:    meshlog.LayerApplication,
			Category: meshlog.CategoryError,
			Error:    &meshlog.ErrorEventData{Layer: meshlog.LayerApplication, Message: "publish failed"},
		}, 65*time.Second),
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	assertContains(t, buf.String(),
		"Total Events: 6",
		"Time Range: 2026-05-01T08:00:00Z to 2026-05-01T08:01:05Z",
		"Duration:   1m5s",
		"ACCESS:",
		"APPLICATION:",
		"STATE:",
		"ERROR:",
		"OnOffSet:",
		"OnOffStatus:",
		"Nodes: 1",
		"[6f0b3c0e] 6 events",
		"State: ATTACHED",
		"Elements: [0 2]",
		"Errors: 1",
	)
	if strings.Contains(buf.String(), "NETWORK:") {
		t.Error("empty layers should not be listed")
	}
}

func TestStatsCounts(t *testing.T) {
	stats := newStats()
	stats.add(messageEvent(meshlog.DirectionIn, 0, 0x1000, codec.EncodeOnOffGet()))
	stats.add(messageEvent(meshlog.DirectionOut, 0, 0x1000, codec.EncodeOnOffStatus(0)))
	stats.add(messageEvent(meshlog.DirectionOut, 0, 0x1000, codec.EncodeOnOffStatus(1)))

	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d", stats.TotalEvents)
	}
	if stats.EventsByDirection[meshlog.DirectionOut] != 2 {
		t.Errorf("out = %d", stats.EventsByDirection[meshlog.DirectionOut])
	}
	if stats.Opcodes[uint32(codec.OpOnOffStatus)] != 2 || stats.Opcodes[uint32(codec.OpOnOffGet)] != 1 {
		t.Errorf("Opcodes = %v", stats.Opcodes)
	}
	if n := stats.Nodes[testNode].Elements[0]; n != 3 {
		t.Errorf("element 0 events = %d", n)
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	assertContains(t, output, "Total Events: 0", "Nodes: 0")
	if strings.Contains(output, "Time Range") {
		t.Error("empty capture should not print a time range")
	}
}
