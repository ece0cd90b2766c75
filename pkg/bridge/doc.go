// Package bridge connects a mesh application to an MQTT broker.
//
// Every message delivered to the application is published upstream as JSON
// on sensor/<source address>:
//
//	{"location": 256, "opcode": [130, 4], "parameters": [1]}
//
// Commands arrive on the command topic. A command whose topic ends in
// "sensor" and whose body carries an address and a display block is turned
// into an acknowledged On/Off Set, sent by the On/Off client of the element
// at the given location:
//
//	{"address": 256, "display": {"location": 269, "on": true}}
package bridge
