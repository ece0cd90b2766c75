package log

import "time"

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// NodeID is the device UUID of the capturing node.
	NodeID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Element is the element index the event belongs to.
	Element *uint8 `cbor:"6,keyasint,omitempty"`

	// Model is the model id; Vendor is 0xFFFF for SIG models.
	Model  *uint16 `cbor:"7,keyasint,omitempty"`
	Vendor *uint16 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	Config      *ConfigEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message delivered to the node.
	DirectionIn Direction = 0
	// DirectionOut indicates a message sent or published by the node.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerNetwork is the mesh daemon or in-memory network.
	LayerNetwork Layer = 0
	// LayerAccess is the element and model layer.
	LayerAccess Layer = 1
	// LayerApplication is the node session and the MQTT bridge.
	LayerApplication Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerNetwork:
		return "NETWORK"
	case LayerAccess:
		return "ACCESS"
	case LayerApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an addressed access message.
	CategoryMessage Category = 0
	// CategoryPublication indicates a periodic or explicit publication.
	CategoryPublication Category = 1
	// CategoryConfig indicates a model configuration update.
	CategoryConfig Category = 2
	// CategoryState indicates a lifecycle state change.
	CategoryState Category = 3
	// CategoryError indicates a failure.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryPublication:
		return "PUBLICATION"
	case CategoryConfig:
		return "CONFIG"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures an access payload with its addressing.
type MessageEvent struct {
	// Source is the unicast source address (inbound only).
	Source uint16 `cbor:"1,keyasint,omitempty"`

	// Destination is a 4-digit hex address or a virtual label UUID.
	Destination string `cbor:"2,keyasint,omitempty"`

	// KeyIndex is the application key index.
	KeyIndex uint16 `cbor:"3,keyasint"`

	// Opcode is the decoded opcode, nil when the payload had none.
	Opcode *uint32 `cbor:"4,keyasint,omitempty"`

	// Payload is the raw access payload, opcode included.
	Payload []byte `cbor:"5,keyasint,omitempty"`
}

// ConfigEvent captures a configuration update applied to a model.
// Only fields present in the update are set.
type ConfigEvent struct {
	Bindings      []uint16 `cbor:"1,keyasint,omitempty"`
	Subscriptions []string `cbor:"2,keyasint,omitempty"`

	// PublicationPeriod in milliseconds; 0 disables publication.
	PublicationPeriod *uint32 `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures node and bridge lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityNode is the join/attach lifecycle of the node.
	StateEntityNode StateEntity = 0
	// StateEntityModel is a model state machine (for example On/Off).
	StateEntityModel StateEntity = 1
	// StateEntityBridge is the MQTT bridge connection.
	StateEntityBridge StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityNode:
		return "NODE"
	case StateEntityModel:
		return "MODEL"
	case StateEntityBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// Uint8Ptr returns a pointer to v, for the optional event fields.
func Uint8Ptr(v uint8) *uint8 { return &v }

// Uint16Ptr returns a pointer to v.
func Uint16Ptr(v uint16) *uint16 { return &v }

// Uint32Ptr returns a pointer to v.
func Uint32Ptr(v uint32) *uint32 { return &v }
