package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sensor opcodes.
const (
	OpSensorStatus uint8  = 0x52
	OpSensorGet    uint16 = 0x8231
)

// Property header layout.
const (
	formatBit     = 0x8000
	lengthShift   = 11
	lengthMask    = 0x0f
	propertyMask  = 0x07ff
	headerLen     = 2
	MaxPropertyID = propertyMask
	MaxValueLen   = lengthMask
)

// Format is the property header format bit.
type Format uint8

const (
	FormatA Format = 0
	FormatB Format = 1
)

// Codec errors.
var (
	ErrNotSensorStatus   = errors.New("not a sensor status frame")
	ErrNotSensorGet      = errors.New("not a sensor get frame")
	ErrUnsupportedFormat = errors.New("unsupported property format")
	ErrTruncated         = errors.New("truncated property entry")
	ErrPropertyID        = errors.New("property id out of range")
	ErrValueTooLong      = errors.New("property value too long")
)

// PackPropertyHeader builds a format A property header.
func PackPropertyHeader(id uint16, length int) (uint16, error) {
	if id > MaxPropertyID {
		return 0, fmt.Errorf("%w: 0x%04x", ErrPropertyID, id)
	}
	if length < 0 || length > MaxValueLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrValueTooLong, length)
	}
	return uint16(length)<<lengthShift | id, nil
}

// UnpackPropertyHeader splits a property header into its fields.
func UnpackPropertyHeader(h uint16) (format Format, length int, id uint16) {
	if h&formatBit != 0 {
		format = FormatB
	}
	return format, int(h>>lengthShift) & lengthMask, h & propertyMask
}

// Property is one sensor property entry.
type Property struct {
	ID    uint16
	Value []byte
}

// Uint8Property builds a one-byte property.
func Uint8Property(id uint16, v uint8) Property {
	return Property{ID: id, Value: []byte{v}}
}

// Uint16Property builds a little-endian u16 property.
func Uint16Property(id uint16, v uint16) Property {
	return Property{ID: id, Value: binary.LittleEndian.AppendUint16(nil, v)}
}

// Int16Property builds a little-endian i16 property.
func Int16Property(id uint16, v int16) Property {
	return Uint16Property(id, uint16(v))
}

// Float32x3Property builds a property of three little-endian float32 values.
func Float32x3Property(id uint16, v [3]float32) Property {
	b := make([]byte, 0, 12)
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return Property{ID: id, Value: b}
}

// Uint8 returns the value as u8. ok is false on a length mismatch.
func (p Property) Uint8() (uint8, bool) {
	if len(p.Value) != 1 {
		return 0, false
	}
	return p.Value[0], true
}

// Uint16 returns the value as little-endian u16.
func (p Property) Uint16() (uint16, bool) {
	if len(p.Value) != 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(p.Value), true
}

// Int16 returns the value as little-endian i16.
func (p Property) Int16() (int16, bool) {
	v, ok := p.Uint16()
	return int16(v), ok
}

// Float32x3 returns the value as three little-endian float32 values.
func (p Property) Float32x3() ([3]float32, bool) {
	var out [3]float32
	if len(p.Value) != 12 {
		return out, false
	}
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Value[i*4:]))
	}
	return out, true
}

// EncodeSensorStatus returns a Sensor Status frame carrying props in order.
func EncodeSensorStatus(props ...Property) ([]byte, error) {
	size := 1
	for _, p := range props {
		size += headerLen + len(p.Value)
	}
	b := make([]byte, 0, size)
	b = append(b, OpSensorStatus)
	for _, p := range props {
		h, err := PackPropertyHeader(p.ID, len(p.Value))
		if err != nil {
			return nil, err
		}
		b = binary.BigEndian.AppendUint16(b, h)
		b = append(b, p.Value...)
	}
	return b, nil
}

// DecodeSensorStatus parses a Sensor Status frame into its property entries.
// Entries are read until the payload is exhausted. The returned values alias
// payload.
func DecodeSensorStatus(payload []byte) ([]Property, error) {
	if len(payload) == 0 || payload[0] != OpSensorStatus {
		return nil, ErrNotSensorStatus
	}

	var props []Property
	rest := payload[1:]
	for len(rest) > 0 {
		if len(rest) < headerLen {
			return props, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(rest))
		}
		format, length, id := UnpackPropertyHeader(binary.BigEndian.Uint16(rest))
		if format != FormatA {
			return props, fmt.Errorf("%w: property 0x%04x", ErrUnsupportedFormat, id)
		}
		rest = rest[headerLen:]
		if length > len(rest) {
			return props, fmt.Errorf("%w: property 0x%04x wants %d bytes, %d left", ErrTruncated, id, length, len(rest))
		}
		props = append(props, Property{ID: id, Value: rest[:length:length]})
		rest = rest[length:]
	}
	return props, nil
}

// EncodeSensorGet returns a Sensor Get frame. A zero id requests all
// properties and is omitted from the frame.
func EncodeSensorGet(id uint16) []byte {
	b := binary.BigEndian.AppendUint16(make([]byte, 0, 4), OpSensorGet)
	if id != 0 {
		b = binary.LittleEndian.AppendUint16(b, id)
	}
	return b
}

// DecodeSensorGet parses a Sensor Get frame. id is 0 when all properties are
// requested.
func DecodeSensorGet(payload []byte) (id uint16, err error) {
	if len(payload) < 2 || binary.BigEndian.Uint16(payload) != OpSensorGet {
		return 0, ErrNotSensorGet
	}
	switch len(payload) {
	case 2:
		return 0, nil
	case 4:
		return binary.LittleEndian.Uint16(payload[2:]), nil
	}
	return 0, ErrNotSensorGet
}
