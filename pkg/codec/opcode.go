package codec

import "encoding/binary"

// SplitOpcode separates an access payload into its opcode and parameters.
// The opcode size follows the two high bits of the first octet: 0b0x is one
// octet, 0b10 two octets and 0b11 three octets. ok is false when the payload
// is shorter than its opcode.
func SplitOpcode(payload []byte) (opcode uint32, params []byte, ok bool) {
	if len(payload) == 0 {
		return 0, nil, false
	}
	switch {
	case payload[0]&0x80 == 0:
		if payload[0] == 0x7f {
			return 0, nil, false
		}
		return uint32(payload[0]), payload[1:], true
	case payload[0]&0xc0 == 0x80:
		if len(payload) < 2 {
			return 0, nil, false
		}
		return uint32(binary.BigEndian.Uint16(payload)), payload[2:], true
	default:
		if len(payload) < 3 {
			return 0, nil, false
		}
		return uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2]), payload[3:], true
	}
}

// AppendOpcode appends an opcode in its on-air size.
func AppendOpcode(dst []byte, opcode uint32) []byte {
	switch {
	case opcode <= 0x7e:
		return append(dst, byte(opcode))
	case opcode <= 0xffff:
		return binary.BigEndian.AppendUint16(dst, uint16(opcode))
	default:
		return append(dst, byte(opcode>>16), byte(opcode>>8), byte(opcode))
	}
}
