package onoff

// Model identifiers.
const (
	ServerModelID uint16 = 0x1000
	ClientModelID uint16 = 0x1001
)

// State is the Generic On/Off state.
type State uint8

const (
	Off State = 0
	On  State = 1
)

// String returns "OFF" or "ON".
func (s State) String() string {
	if s == On {
		return "ON"
	}
	return "OFF"
}

// ParseState accepts on/off in any case and 1/0.
func ParseState(s string) (State, bool) {
	switch s {
	case "on", "ON", "On", "1":
		return On, true
	case "off", "OFF", "Off", "0":
		return Off, true
	}
	return Off, false
}
