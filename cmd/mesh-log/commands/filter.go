package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// FilterOptions holds the textual filter flags shared by view and filter.
// Empty fields match everything.
type FilterOptions struct {
	NodeID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Element   string
	Model     string
	Opcode    string
}

// BuildFilter parses opts into a capture filter.
func BuildFilter(opts FilterOptions) (meshlog.Filter, error) {
	filter := meshlog.Filter{NodeID: opts.NodeID}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if opts.Element != "" {
		v, err := strconv.ParseUint(opts.Element, 0, 8)
		if err != nil {
			return filter, fmt.Errorf("invalid element: %s", opts.Element)
		}
		filter.Element = meshlog.Uint8Ptr(uint8(v))
	}
	if opts.Model != "" {
		v, err := parseHex(opts.Model, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid model: %s", opts.Model)
		}
		filter.Model = meshlog.Uint16Ptr(uint16(v))
	}
	if opts.Opcode != "" {
		v, err := parseHex(opts.Opcode, 24)
		if err != nil {
			return filter, fmt.Errorf("invalid opcode: %s", opts.Opcode)
		}
		filter.Opcode = meshlog.Uint32Ptr(uint32(v))
	}
	return filter, nil
}

// parseHex reads a hex number with or without a 0x prefix.
func parseHex(s string, bits int) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strconv.ParseUint(s, 16, bits)
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (meshlog.Layer, error) {
	switch strings.ToLower(s) {
	case "network":
		return meshlog.LayerNetwork, nil
	case "access":
		return meshlog.LayerAccess, nil
	case "application", "app":
		return meshlog.LayerApplication, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be network, access, or application)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (meshlog.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return meshlog.DirectionIn, nil
	case "out":
		return meshlog.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (meshlog.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return meshlog.CategoryMessage, nil
	case "publication":
		return meshlog.CategoryPublication, nil
	case "config":
		return meshlog.CategoryConfig, nil
	case "state":
		return meshlog.CategoryState, nil
	case "error":
		return meshlog.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, publication, config, state, or error)", s)
	}
}

// RunFilter copies the events of path matching opts into output and
// reports the count on w.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	filter, err := BuildFilter(opts)
	if err != nil {
		return err
	}

	reader, err := meshlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := meshlog.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	if err := logger.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
