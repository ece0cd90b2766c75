package sensor

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/mash-protocol/meshmodel/pkg/codec"
)

// Source supplies the property entries a Server publishes.
type Source interface {
	Properties() []codec.Property
}

// Simulated room temperature range, upper bound exclusive.
const (
	MinTemperature = 18.0
	MaxTemperature = 23.0
)

// Temperature is a Source producing a random temperature in
// [MinTemperature, MaxTemperature) with 0.5 degree resolution.
type Temperature struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	last float64
}

// NewTemperature returns a temperature source. A nil rnd uses a randomly
// seeded generator.
func NewTemperature(rnd *rand.Rand) *Temperature {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Temperature{rnd: rnd}
}

// Properties samples a new temperature and returns it as property 0x004F.
func (t *Temperature) Properties() []codec.Property {
	t.mu.Lock()
	defer t.mu.Unlock()

	temp := MinTemperature + t.rnd.Float64()*(MaxTemperature-MinTemperature)
	raw := uint8(math.Floor(temp / temp8Resolution))
	t.last = float64(raw) * temp8Resolution
	return []codec.Property{codec.Uint8Property(PropertyTemperature8, raw)}
}

// Last returns the most recent sample as encoded, 0 before the first one.
func (t *Temperature) Last() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// BoardState is the state of the demo board.
type BoardState struct {
	Buttons     [2]bool
	LEDs        [4]bool
	Counter1    uint16
	Counter2    uint16
	Temperature int16
	Brightness  uint16
	Accel       Acceleration
	Battery     uint8
}

// DefaultBoardState returns the power-up values of the demo board.
func DefaultBoardState() BoardState {
	s := BoardState{
		Counter1:    25,
		Counter2:    32,
		Temperature: 19,
		Brightness:  75,
		Accel:       Acceleration{X: 0.33, Y: 0.55, Z: 0.66},
		Battery:     0x23,
	}
	s.SetFlags(0x1a)
	return s
}

// Flags packs buttons and LEDs into the PropertyButtonsLEDs byte.
func (s BoardState) Flags() uint8 {
	var f uint8
	bits := []bool{s.Buttons[0], s.Buttons[1], s.LEDs[0], s.LEDs[1], s.LEDs[2], s.LEDs[3]}
	for i, on := range bits {
		if on {
			f |= 1 << i
		}
	}
	return f
}

// SetFlags unpacks a PropertyButtonsLEDs byte.
func (s *BoardState) SetFlags(f uint8) {
	s.Buttons[0] = f&FlagButton1 != 0
	s.Buttons[1] = f&FlagButton2 != 0
	s.LEDs[0] = f&FlagLED1 != 0
	s.LEDs[1] = f&FlagLED2 != 0
	s.LEDs[2] = f&FlagLED3 != 0
	s.LEDs[3] = f&FlagLED4 != 0
}

// Properties returns every board property in publication order.
func (s BoardState) Properties() []codec.Property {
	return []codec.Property{
		codec.Uint8Property(PropertyButtonsLEDs, s.Flags()),
		codec.Uint16Property(PropertyCounter1, s.Counter1),
		codec.Uint16Property(PropertyCounter2, s.Counter2),
		codec.Int16Property(PropertyTemperature, s.Temperature),
		codec.Uint16Property(PropertyBrightness, s.Brightness),
		codec.Float32x3Property(PropertyAccelerometer, [3]float32{s.Accel.X, s.Accel.Y, s.Accel.Z}),
		codec.Uint8Property(PropertyBattery, s.Battery),
	}
}

// Board is a concurrency-safe Source over a BoardState.
type Board struct {
	mu    sync.Mutex
	state BoardState
}

// NewBoard returns a board starting at state.
func NewBoard(state BoardState) *Board {
	return &Board{state: state}
}

// State returns a copy of the board state.
func (b *Board) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Update mutates the board state under its lock.
func (b *Board) Update(fn func(*BoardState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
}

// Properties returns the current board properties.
func (b *Board) Properties() []codec.Property {
	return b.State().Properties()
}

var (
	_ Source = (*Temperature)(nil)
	_ Source = (*Board)(nil)
	_ Source = BoardState{}
)
