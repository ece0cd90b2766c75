package codec

import "encoding/binary"

// Generic On/Off opcodes.
const (
	OpOnOffGet      uint16 = 0x8201
	OpOnOffSet      uint16 = 0x8202
	OpOnOffSetUnack uint16 = 0x8203
	OpOnOffStatus   uint16 = 0x8204
)

// On/Off frame lengths, opcode included.
const (
	onOffGetLen    = 2
	onOffStatusLen = 3
	onOffSetLen    = 4
)

// OnOffMessage is a decoded Generic On/Off frame.
// State and TID are only meaningful for the opcodes that carry them.
type OnOffMessage struct {
	Opcode uint16
	State  uint8
	TID    uint8
}

// Acknowledged reports whether a Set expects a Status reply.
func (m OnOffMessage) Acknowledged() bool {
	return m.Opcode == OpOnOffSet
}

// EncodeOnOffGet returns a Get frame.
func EncodeOnOffGet() []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, onOffGetLen), OpOnOffGet)
}

// EncodeOnOffSet returns a Set frame, or a Set Unacknowledged frame when ack
// is false.
func EncodeOnOffSet(state, tid uint8, ack bool) []byte {
	op := OpOnOffSetUnack
	if ack {
		op = OpOnOffSet
	}
	b := binary.BigEndian.AppendUint16(make([]byte, 0, onOffSetLen), op)
	return append(b, state, tid)
}

// EncodeOnOffStatus returns a Status frame.
func EncodeOnOffStatus(state uint8) []byte {
	b := binary.BigEndian.AppendUint16(make([]byte, 0, onOffStatusLen), OpOnOffStatus)
	return append(b, state)
}

// DecodeOnOff decodes a Generic On/Off frame. The length selects the
// expected opcode; any other length, a mismatching opcode or a state byte
// other than 0 or 1 yields ok=false.
func DecodeOnOff(payload []byte) (OnOffMessage, bool) {
	if len(payload) < 2 {
		return OnOffMessage{}, false
	}
	op := binary.BigEndian.Uint16(payload)

	switch len(payload) {
	case onOffGetLen:
		if op != OpOnOffGet {
			return OnOffMessage{}, false
		}
		return OnOffMessage{Opcode: op}, true

	case onOffStatusLen:
		if op != OpOnOffStatus || payload[2] > 1 {
			return OnOffMessage{}, false
		}
		return OnOffMessage{Opcode: op, State: payload[2]}, true

	case onOffSetLen:
		if op != OpOnOffSet && op != OpOnOffSetUnack {
			return OnOffMessage{}, false
		}
		if payload[2] > 1 {
			return OnOffMessage{}, false
		}
		return OnOffMessage{Opcode: op, State: payload[2], TID: payload[3]}, true
	}
	return OnOffMessage{}, false
}
