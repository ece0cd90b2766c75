// Package codec encodes and decodes the access-layer payloads exchanged by
// the mesh models.
//
// Two message families are supported:
//
//   - Generic On/Off: two-byte big-endian opcodes followed by a state byte and,
//     for Set, a transaction identifier.
//   - Sensor: the one-byte Status opcode followed by a list of property
//     entries, and the two-byte Get opcode with an optional property id.
//
// Sensor property entries use the marshalled format A header: a 16-bit
// big-endian word carrying the format bit, a 4-bit value length and an 11-bit
// property id. Values are little-endian.
//
// The codec is pure: no locks, no I/O, no logging.
package codec
