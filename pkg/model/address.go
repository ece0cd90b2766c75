package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Well-known addresses.
const (
	UnassignedAddress uint16 = 0x0000
	AllNodesAddress   uint16 = 0xffff
)

// ErrInvalidAddress is returned by ParseAddress.
var ErrInvalidAddress = errors.New("invalid mesh address")

// Address is a mesh destination: a 16-bit unicast or group address, or a
// 128-bit virtual label. Addresses are comparable.
type Address struct {
	value     uint16
	label     uuid.UUID
	isVirtual bool
}

// Subscription is an address a model listens on.
type Subscription = Address

// NewAddress returns a 16-bit address.
func NewAddress(v uint16) Address {
	return Address{value: v}
}

// LabelAddress returns a virtual label address.
func LabelAddress(label uuid.UUID) Address {
	return Address{label: label, isVirtual: true}
}

// ParseAddress parses a 4-digit hex address or a label UUID.
func ParseAddress(s string) (Address, error) {
	if len(s) <= 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		return NewAddress(uint16(v)), nil
	}
	label, err := uuid.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return LabelAddress(label), nil
}

// IsVirtual reports whether the address is a label.
func (a Address) IsVirtual() bool { return a.isVirtual }

// Value returns the 16-bit address. It is 0 for labels.
func (a Address) Value() uint16 { return a.value }

// Label returns the virtual label. It is uuid.Nil for 16-bit addresses.
func (a Address) Label() uuid.UUID { return a.label }

// IsUnicast reports whether the address names a single element.
func (a Address) IsUnicast() bool {
	return !a.isVirtual && a.value != UnassignedAddress && a.value < 0x8000
}

// IsGroup reports whether the address is a group address.
func (a Address) IsGroup() bool {
	return !a.isVirtual && a.value >= 0xc000
}

// String formats the address as 4 hex digits or the label UUID.
func (a Address) String() string {
	if a.isVirtual {
		return a.label.String()
	}
	return fmt.Sprintf("%04x", a.value)
}
