package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[meshlog.Layer]int
	EventsByCategory  map[meshlog.Category]int
	EventsByDirection map[meshlog.Direction]int
	Opcodes           map[uint32]int
	Nodes             map[string]*NodeStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// NodeStats holds statistics for a single node.
type NodeStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Elements  map[uint8]int

	// LastState is the most recent node lifecycle state.
	LastState string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[meshlog.Layer]int),
		EventsByCategory:  make(map[meshlog.Category]int),
		EventsByDirection: make(map[meshlog.Direction]int),
		Opcodes:           make(map[uint32]int),
		Nodes:             make(map[string]*NodeStats),
	}
}

func (s *Stats) add(event meshlog.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	node, ok := s.Nodes[event.NodeID]
	if !ok {
		node = &NodeStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Elements:  make(map[uint8]int),
		}
		s.Nodes[event.NodeID] = node
	}
	node.Events++
	if event.Timestamp.After(node.LastSeen) {
		node.LastSeen = event.Timestamp
	}
	if event.Element != nil {
		node.Elements[*event.Element]++
	}
	if sc := event.StateChange; sc != nil && sc.Entity == meshlog.StateEntityNode {
		node.LastState = sc.NewState
	}

	if event.Message != nil && event.Message.Opcode != nil {
		s.Opcodes[*event.Message.Opcode]++
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := meshlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Mesh Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []meshlog.Layer{meshlog.LayerNetwork, meshlog.LayerAccess, meshlog.LayerApplication} {
		if n := stats.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []meshlog.Category{
		meshlog.CategoryMessage, meshlog.CategoryPublication, meshlog.CategoryConfig,
		meshlog.CategoryState, meshlog.CategoryError,
	} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, d := range []meshlog.Direction{meshlog.DirectionIn, meshlog.DirectionOut} {
		if n := stats.EventsByDirection[d]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", d.String()+":", n)
		}
	}

	if len(stats.Opcodes) > 0 {
		ops := make([]uint32, 0, len(stats.Opcodes))
		for op := range stats.Opcodes {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Messages by Opcode:")
		for _, op := range ops {
			fmt.Fprintf(w, "  %-14s %d\n", opcodeName(op)+":", stats.Opcodes[op])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Nodes: %d\n", len(stats.Nodes))
	if len(stats.Nodes) > 0 {
		type nodeInfo struct {
			id    string
			stats *NodeStats
		}
		nodes := make([]nodeInfo, 0, len(stats.Nodes))
		for id, ns := range stats.Nodes {
			nodes = append(nodes, nodeInfo{id, ns})
		}
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].stats.FirstSeen.Before(nodes[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, n := range nodes {
			duration := n.stats.LastSeen.Sub(n.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenNodeID(n.id), n.stats.Events, duration)
			if n.stats.LastState != "" {
				fmt.Fprintf(w, "           State: %s\n", n.stats.LastState)
			}
			if len(n.stats.Elements) > 0 {
				elements := make([]int, 0, len(n.stats.Elements))
				for e := range n.stats.Elements {
					elements = append(elements, int(e))
				}
				sort.Ints(elements)
				fmt.Fprintf(w, "           Elements: %v\n", elements)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
