package model

// Message is an access message delivered to an element.
type Message struct {
	Source      uint16
	Destination Address
	KeyIndex    uint16

	// Payload is the access payload, opcode included.
	Payload []byte
}
