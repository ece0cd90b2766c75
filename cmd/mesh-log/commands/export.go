package commands

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// RunExport writes the events of path in format to output, or to stdout
// when output is empty.
func RunExport(path, format, output string) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := meshlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *meshlog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{
	"timestamp", "node_id", "direction", "layer", "category",
	"element", "model", "type", "source", "destination", "opcode", "payload",
}

func exportCSV(reader *meshlog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(event meshlog.Event) []string {
	var element, model, source, destination, opcode, payload string
	if event.Element != nil {
		element = strconv.Itoa(int(*event.Element))
	}
	if event.Model != nil {
		model = modelName(event.Model, event.Vendor)
	}
	if m := event.Message; m != nil {
		if event.Direction == meshlog.DirectionIn {
			source = fmt.Sprintf("%04x", m.Source)
		}
		destination = m.Destination
		if m.Opcode != nil {
			opcode = fmt.Sprintf("0x%x", *m.Opcode)
		}
		payload = hex.EncodeToString(m.Payload)
	}

	return []string{
		event.Timestamp.UTC().Format(timestampLayout),
		event.NodeID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		element,
		model,
		eventLabel(event),
		source,
		destination,
		opcode,
		payload,
	}
}
