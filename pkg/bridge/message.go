package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// Message errors.
var (
	ErrNoAddress = errors.New("command has no address")
	ErrNoDisplay = errors.New("command has no display block")
	ErrNoOpcode  = errors.New("payload has no opcode")
)

// Octets marshals as a JSON array of numbers rather than base64.
type Octets []byte

// MarshalJSON implements json.Marshaler.
func (o Octets) MarshalJSON() ([]byte, error) {
	out := make([]int, len(o))
	for i, b := range o {
		out[i] = int(b)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Octets) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make(Octets, len(ints))
	for i, v := range ints {
		if v < 0 || v > 0xff {
			return fmt.Errorf("octet %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*o = out
	return nil
}

// Uplink is the JSON body published for a received mesh message.
type Uplink struct {
	Location   uint16 `json:"location"`
	Opcode     Octets `json:"opcode"`
	Parameters Octets `json:"parameters"`
}

// NewUplink splits an access payload received on the element at location.
func NewUplink(location uint16, payload []byte) (Uplink, error) {
	_, params, ok := codec.SplitOpcode(payload)
	if !ok {
		return Uplink{}, ErrNoOpcode
	}
	n := len(payload) - len(params)
	return Uplink{
		Location:   location,
		Opcode:     Octets(payload[:n]),
		Parameters: Octets(params),
	}, nil
}

// UplinkTopic returns the topic for messages from src.
func UplinkTopic(prefix string, src uint16) string {
	return fmt.Sprintf("%s/%04x", prefix, src)
}

// Command is a downlink On/Off request.
type Command struct {
	Address *uint16  `json:"address"`
	Display *Display `json:"display"`
}

// Display addresses the element that sends the Set and the requested state.
type Display struct {
	Location uint16 `json:"location"`
	On       bool   `json:"on"`
}

// ParseCommand decodes a downlink body.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Address == nil {
		return Command{}, ErrNoAddress
	}
	if cmd.Display == nil {
		return Command{}, ErrNoDisplay
	}
	return cmd, nil
}

// Destination returns the target address of the Set.
func (c Command) Destination() model.Address {
	return model.NewAddress(*c.Address)
}
