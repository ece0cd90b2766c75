package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// VendorNone is the vendor id of SIG-defined models.
const VendorNone uint16 = 0xffff

// Model errors.
var (
	ErrDuplicateModel = errors.New("duplicate model")
	ErrModelNotFound  = errors.New("model not found")
)

// Model is a mesh model owned by an element.
// Implementations embed *Base.
type Model interface {
	// ID returns the 16-bit model identifier.
	ID() uint16

	// Vendor returns the company id, VendorNone for SIG models.
	Vendor() uint16

	// ProcessMessage handles an inbound message. Messages the model does
	// not recognise are ignored.
	ProcessMessage(ctx context.Context, msg Message)

	// SetConfig merges a sparse configuration update.
	SetConfig(update ConfigUpdate)

	// Config returns a copy of the current configuration.
	Config() Config

	base() *Base
}

// Stopper is implemented by models owning timers. Application.Close calls
// Stop on every such model.
type Stopper interface {
	Stop()
}

// Option configures a Base.
type Option func(*Base)

// WithVendor sets the company id of a vendor model.
func WithVendor(vendor uint16) Option {
	return func(b *Base) {
		b.vendor = vendor
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithPublicationHandler registers the hook called when a configuration
// update carries a publication period.
func WithPublicationHandler(fn func(period time.Duration)) Option {
	return func(b *Base) {
		b.onPeriod = fn
	}
}

// Base holds what every model shares: identity, configuration and the
// outbound path through the owning element.
type Base struct {
	id       uint16
	vendor   uint16
	logger   *slog.Logger
	onPeriod func(time.Duration)

	mu      sync.RWMutex
	config  Config
	element *Element
}

// NewBase returns a Base for a SIG model unless WithVendor is given.
func NewBase(id uint16, opts ...Option) *Base {
	b := &Base{
		id:     id,
		vendor: VendorNone,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) base() *Base { return b }

// ID returns the model identifier.
func (b *Base) ID() uint16 { return b.id }

// Vendor returns the company id, VendorNone for SIG models.
func (b *Base) Vendor() uint16 { return b.vendor }

// IsVendor reports whether this is a vendor model.
func (b *Base) IsVendor() bool { return b.vendor != VendorNone }

// Logger returns the operational logger, annotated with the model identity.
func (b *Base) Logger() *slog.Logger {
	args := []any{"model", b.Name()}
	if e := b.Element(); e != nil {
		args = append(args, "element", e.Index())
	}
	return b.logger.With(args...)
}

// Name formats the model identity as 0xMMMM or 0xVVVV:0xMMMM.
func (b *Base) Name() string {
	if b.IsVendor() {
		return fmt.Sprintf("0x%04x:0x%04x", b.vendor, b.id)
	}
	return fmt.Sprintf("0x%04x", b.id)
}

// Element returns the owning element, nil before AddModel.
func (b *Base) Element() *Element {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.element
}

func (b *Base) attach(e *Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.element = e
}

// ProcessMessage ignores the message.
func (b *Base) ProcessMessage(context.Context, Message) {}

// Config returns a copy of the configuration.
func (b *Base) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.clone()
}

// SetConfig merges the present fields of update. A present publication
// period is forwarded to the publication hook after the merge.
func (b *Base) SetConfig(update ConfigUpdate) {
	b.mu.Lock()
	b.config.apply(update)
	b.mu.Unlock()

	b.record(meshlog.Event{
		Direction: meshlog.DirectionIn,
		Category:  meshlog.CategoryConfig,
		Config:    configEvent(update),
	})

	if update.PublicationPeriod != nil && b.onPeriod != nil {
		b.onPeriod(*update.PublicationPeriod)
	}
}

// SendMessage sends payload from the owning element to dst. The result is
// logged; failures are not retried.
func (b *Base) SendMessage(dst Address, keyIndex uint16, payload []byte) {
	e := b.Element()
	if e == nil {
		b.sendFailed("send", ErrNotAttached)
		return
	}
	t := e.transport()
	if t == nil {
		b.sendFailed("send", ErrNotAttached)
		return
	}

	b.record(meshlog.Event{
		Direction: meshlog.DirectionOut,
		Category:  meshlog.CategoryMessage,
		Message: &meshlog.MessageEvent{
			Destination: dst.String(),
			KeyIndex:    keyIndex,
			Opcode:      opcodeOf(payload),
			Payload:     payload,
		},
	})

	t.Send(e.Path(), dst, keyIndex, SendOptions{ForceSegmented: true}, payload, func(err error) {
		if err != nil {
			b.sendFailed("send", err)
			return
		}
		b.logger.Debug("message sent", "model", b.Name(), "dst", dst.String())
	})
}

// SendPublication publishes payload on the model's publication address.
func (b *Base) SendPublication(payload []byte) {
	e := b.Element()
	if e == nil {
		b.sendFailed("publish", ErrNotAttached)
		return
	}
	t := e.transport()
	if t == nil {
		b.sendFailed("publish", ErrNotAttached)
		return
	}

	b.record(meshlog.Event{
		Direction: meshlog.DirectionOut,
		Category:  meshlog.CategoryPublication,
		Message: &meshlog.MessageEvent{
			Opcode:  opcodeOf(payload),
			Payload: payload,
		},
	})

	t.Publish(e.Path(), b.id, PublishOptions{Vendor: b.vendor}, payload, func(err error) {
		if err != nil {
			b.sendFailed("publish", err)
			return
		}
		b.logger.Debug("publication sent", "model", b.Name())
	})
}

func (b *Base) sendFailed(op string, err error) {
	b.Logger().Warn(op+" failed", "error", err)
	b.record(meshlog.Event{
		Direction: meshlog.DirectionOut,
		Category:  meshlog.CategoryError,
		Error: &meshlog.ErrorEventData{
			Layer:   meshlog.LayerNetwork,
			Message: err.Error(),
			Context: op,
		},
	})
}

// RecordState captures a model state transition.
func (b *Base) RecordState(oldState, newState, reason string) {
	b.record(meshlog.Event{
		Category: meshlog.CategoryState,
		StateChange: &meshlog.StateChangeEvent{
			Entity:   meshlog.StateEntityModel,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (b *Base) record(event meshlog.Event) {
	e := b.Element()
	if e == nil {
		return
	}
	event.Layer = meshlog.LayerAccess
	event.Model = meshlog.Uint16Ptr(b.id)
	event.Vendor = meshlog.Uint16Ptr(b.vendor)
	e.record(event)
}

func opcodeOf(payload []byte) *uint32 {
	op, _, ok := codec.SplitOpcode(payload)
	if !ok {
		return nil
	}
	return &op
}

func configEvent(u ConfigUpdate) *meshlog.ConfigEvent {
	ev := &meshlog.ConfigEvent{Bindings: u.Bindings}
	if u.Subscriptions != nil {
		ev.Subscriptions = make([]string, 0, len(u.Subscriptions))
		for _, s := range u.Subscriptions {
			ev.Subscriptions = append(ev.Subscriptions, s.String())
		}
	}
	if u.PublicationPeriod != nil {
		ev.PublicationPeriod = meshlog.Uint32Ptr(uint32(u.PublicationPeriod.Milliseconds()))
	}
	return ev
}
