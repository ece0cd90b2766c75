package model

import (
	"context"
	"encoding/hex"
)

// Vendor model defaults of the simulator.
const (
	SampleVendorID      uint16 = 0x05f1
	SampleVendorModelID uint16 = 0x0001
)

// VendorHandler receives the raw messages of a vendor model.
type VendorHandler func(ctx context.Context, e *Element, msg Message)

// Vendor is a passthrough vendor model. It does not interpret payloads; it
// logs them and hands them to an optional handler.
type Vendor struct {
	*Base
	handler VendorHandler
}

// NewVendor returns a vendor model. handler may be nil.
func NewVendor(vendor, id uint16, handler VendorHandler, opts ...Option) *Vendor {
	opts = append(opts, WithVendor(vendor))
	return &Vendor{
		Base:    NewBase(id, opts...),
		handler: handler,
	}
}

// ProcessMessage logs the payload and forwards it to the handler.
func (v *Vendor) ProcessMessage(ctx context.Context, msg Message) {
	v.Logger().Debug("vendor message", "src", msg.Source, "payload", hex.EncodeToString(msg.Payload))
	if v.handler != nil {
		v.handler(ctx, v.Element(), msg)
	}
}
