// Package sensor implements the Sensor server and client models.
//
// A Server publishes the properties of a Source on every publication tick
// and answers Sensor Get with a fresh Status. Two sources are provided: a
// random room temperature (property 0x004F, 0.5 degree steps) and the
// multi-property Board of the demo hardware (buttons, LEDs, counters,
// temperature, brightness, accelerometer and battery).
//
// DecodeReadings turns Status property entries into named readings. Unknown
// properties are logged and skipped by their declared length.
package sensor
