package sensor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mash-protocol/meshmodel/pkg/codec"
)

// Readings maps reading keys to decoded values.
//
// Value types: temp8 float64; button and LED keys bool; counter_1,
// counter_2, brightness uint16; temperature int16; accelerometer
// Acceleration; battery uint8.
type Readings map[string]any

// Acceleration is the accelerometer triplet.
type Acceleration struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// ParseStatus decodes a Sensor Status frame into readings. A truncated
// frame returns the readings decoded so far along with the error. Any other
// framing error, such as a format B header, rejects the whole frame.
func ParseStatus(payload []byte, logger *slog.Logger) (Readings, error) {
	props, err := codec.DecodeSensorStatus(payload)
	if err != nil && !errors.Is(err, codec.ErrTruncated) {
		return nil, fmt.Errorf("sensor status: %w", err)
	}
	r := DecodeReadings(props, logger)
	if err != nil {
		return r, fmt.Errorf("sensor status: %w", err)
	}
	return r, nil
}

// DecodeReadings maps known properties to named readings. Unknown
// properties and known properties of the wrong size are logged and skipped.
func DecodeReadings(props []codec.Property, logger *slog.Logger) Readings {
	if logger == nil {
		logger = slog.Default()
	}
	r := make(Readings, len(props))
	for _, p := range props {
		if !r.add(p) {
			logger.Warn("sensor property skipped", "property", fmt.Sprintf("0x%04x", p.ID), "length", len(p.Value))
		}
	}
	return r
}

func (r Readings) add(p codec.Property) bool {
	switch p.ID {
	case PropertyTemperature8:
		v, ok := p.Uint8()
		if ok {
			r[KeyTemp8] = float64(v) * temp8Resolution
		}
		return ok

	case PropertyButtonsLEDs:
		v, ok := p.Uint8()
		if ok {
			r[KeyButton1] = v&FlagButton1 != 0
			r[KeyButton2] = v&FlagButton2 != 0
			r[KeyLED1] = v&FlagLED1 != 0
			r[KeyLED2] = v&FlagLED2 != 0
			r[KeyLED3] = v&FlagLED3 != 0
			r[KeyLED4] = v&FlagLED4 != 0
		}
		return ok

	case PropertyCounter1, PropertyCounter2, PropertyBrightness:
		v, ok := p.Uint16()
		if ok {
			r[uint16Keys[p.ID]] = v
		}
		return ok

	case PropertyTemperature:
		v, ok := p.Int16()
		if ok {
			r[KeyTemperature] = v
		}
		return ok

	case PropertyAccelerometer:
		v, ok := p.Float32x3()
		if ok {
			r[KeyAccelerometer] = Acceleration{X: v[0], Y: v[1], Z: v[2]}
		}
		return ok

	case PropertyBattery:
		v, ok := p.Uint8()
		if ok {
			r[KeyBattery] = v
		}
		return ok
	}
	return false
}

var uint16Keys = map[uint16]string{
	PropertyCounter1:   KeyCounter1,
	PropertyCounter2:   KeyCounter2,
	PropertyBrightness: KeyBrightness,
}

// Temp8 returns the temp8 reading.
func (r Readings) Temp8() (float64, bool) {
	v, ok := r[KeyTemp8].(float64)
	return v, ok
}
