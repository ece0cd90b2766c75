package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// Element is an addressable unit of a node owning an ordered set of models.
type Element struct {
	mu sync.RWMutex

	index    uint8
	location uint16
	logger   *slog.Logger

	// models in insertion order; dispatch follows this order.
	models []Model

	app *Application
}

// ModelInfo describes a model and its configuration.
type ModelInfo struct {
	ID     uint16
	Vendor uint16
	Config Config
}

// ElementInfo is the element's composition as exported to the mesh daemon.
// SIG and vendor models are listed separately.
type ElementInfo struct {
	Index        uint8
	Location     uint16
	Models       []ModelInfo
	VendorModels []ModelInfo
}

// NewElement returns an element with no models.
func NewElement(index uint8, location uint16, logger *slog.Logger) *Element {
	if logger == nil {
		logger = slog.Default()
	}
	return &Element{
		index:    index,
		location: location,
		logger:   logger,
	}
}

// Index returns the element index.
func (e *Element) Index() uint8 {
	return e.index
}

// Location returns the location descriptor.
func (e *Element) Location() uint16 {
	return e.location
}

// Path returns the element object path, empty until added to an application.
func (e *Element) Path() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.app == nil {
		return ""
	}
	return e.app.elementPath(e.index)
}

// AddModel appends a model. The (id, vendor) pair must be unique.
func (e *Element) AddModel(m Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.models {
		if existing.ID() == m.ID() && existing.Vendor() == m.Vendor() {
			return fmt.Errorf("%w: %s on element %d", ErrDuplicateModel, m.base().Name(), e.index)
		}
	}
	e.models = append(e.models, m)
	m.base().attach(e)
	return nil
}

// Models returns the models in insertion order.
func (e *Element) Models() []Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Model, len(e.models))
	copy(out, e.models)
	return out
}

// Model returns the first model with the given id, regardless of vendor.
func (e *Element) Model(id uint16) (Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.models {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, ErrModelNotFound
}

// VendorModel returns the model with the given vendor and id.
func (e *Element) VendorModel(vendor, id uint16) (Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.models {
		if m.ID() == id && m.Vendor() == vendor {
			return m, nil
		}
	}
	return nil, ErrModelNotFound
}

// ProcessInbound delivers msg to every model of the element.
func (e *Element) ProcessInbound(ctx context.Context, msg Message) {
	e.record(meshlog.Event{
		Direction: meshlog.DirectionIn,
		Layer:     meshlog.LayerAccess,
		Category:  meshlog.CategoryMessage,
		Message: &meshlog.MessageEvent{
			Source:      msg.Source,
			Destination: msg.Destination.String(),
			KeyIndex:    msg.KeyIndex,
			Opcode:      opcodeOf(msg.Payload),
			Payload:     msg.Payload,
		},
	})

	for _, m := range e.Models() {
		m.ProcessMessage(ctx, msg)
	}
}

// ApplyConfig routes a configuration update to the first model with the id.
// A missing model is logged and reported as ErrModelNotFound.
func (e *Element) ApplyConfig(modelID uint16, update ConfigUpdate) error {
	m, err := e.Model(modelID)
	if err != nil {
		e.logger.Info("config for unknown model ignored", "element", e.index, "model", fmt.Sprintf("0x%04x", modelID))
		return fmt.Errorf("%w: 0x%04x on element %d", err, modelID, e.index)
	}
	m.SetConfig(update)
	return nil
}

// ApplyVendorConfig routes a configuration update to a vendor model.
func (e *Element) ApplyVendorConfig(vendor, modelID uint16, update ConfigUpdate) error {
	m, err := e.VendorModel(vendor, modelID)
	if err != nil {
		e.logger.Info("config for unknown vendor model ignored", "element", e.index,
			"model", fmt.Sprintf("0x%04x:0x%04x", vendor, modelID))
		return fmt.Errorf("%w: 0x%04x:0x%04x on element %d", err, vendor, modelID, e.index)
	}
	m.SetConfig(update)
	return nil
}

// Info returns the element composition with current model configurations.
func (e *Element) Info() ElementInfo {
	info := ElementInfo{Index: e.index, Location: e.location}
	for _, m := range e.Models() {
		mi := ModelInfo{ID: m.ID(), Vendor: m.Vendor(), Config: m.Config()}
		if m.Vendor() == VendorNone {
			info.Models = append(info.Models, mi)
		} else {
			info.VendorModels = append(info.VendorModels, mi)
		}
	}
	return info
}

// stop stops the timers of every model that owns one.
func (e *Element) stop() {
	for _, m := range e.Models() {
		if s, ok := m.(Stopper); ok {
			s.Stop()
		}
	}
}

func (e *Element) setApplication(app *Application) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.app = app
}

func (e *Element) application() *Application {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.app
}

func (e *Element) transport() Transport {
	if app := e.application(); app != nil {
		return app.Transport()
	}
	return nil
}

func (e *Element) record(event meshlog.Event) {
	app := e.application()
	if app == nil {
		return
	}
	if event.Element == nil {
		event.Element = meshlog.Uint8Ptr(e.index)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	app.record(event)
}
