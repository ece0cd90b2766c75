package sensor

// Model identifiers.
const (
	ServerModelID      uint16 = 0x1100
	SetupServerModelID uint16 = 0x1101
	ClientModelID      uint16 = 0x1102
)

// Property identifiers.
const (
	PropertyButtonsLEDs   uint16 = 0x0001
	PropertyCounter1      uint16 = 0x0007
	PropertyCounter2      uint16 = 0x0008
	PropertyTemperature   uint16 = 0x0009
	PropertyBrightness    uint16 = 0x000a
	PropertyAccelerometer uint16 = 0x000b
	PropertyBattery       uint16 = 0x000c
	PropertyTemperature8  uint16 = 0x004f
)

// Reading keys.
const (
	KeyTemp8         = "temp8"
	KeyButton1       = "button_1"
	KeyButton2       = "button_2"
	KeyLED1          = "led_1"
	KeyLED2          = "led_2"
	KeyLED3          = "led_3"
	KeyLED4          = "led_4"
	KeyCounter1      = "counter_1"
	KeyCounter2      = "counter_2"
	KeyTemperature   = "temperature"
	KeyBrightness    = "brightness"
	KeyAccelerometer = "accelerometer"
	KeyBattery       = "battery"
)

// Buttons and LEDs flag bits of PropertyButtonsLEDs.
const (
	FlagButton1 uint8 = 1 << iota
	FlagButton2
	FlagLED1
	FlagLED2
	FlagLED3
	FlagLED4
)

// Temperature8 resolution in degrees Celsius.
const temp8Resolution = 0.5
