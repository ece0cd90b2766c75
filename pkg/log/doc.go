// Package log provides protocol capture for the mesh model engine.
//
// This package defines the Logger interface and Event types recording what
// crossed the access layer: inbound and outbound messages, periodic
// publications, configuration pushed by the mesh daemon, node lifecycle
// changes and send failures. It is separate from operational logging (slog);
// a capture is a complete machine-readable trace that can be replayed or
// filtered offline.
//
// # Basic Usage
//
//	// During development: mirror events to the console
//	app.SetProtocolLogger(log.NewSlogAdapter(slog.Default()))
//
//	// On a device: append to a capture file
//	fl, _ := log.NewFileLogger("/var/log/mesh/device.mlog")
//	app.SetProtocolLogger(fl)
//
//	// Both
//	app.SetProtocolLogger(log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl))
//
// # File Format
//
// Capture files are a stream of CBOR maps with integer keys, conventionally
// named *.mlog. The mesh-log command views, filters and summarises them.
package log
