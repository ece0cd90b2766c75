package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

// Composition identity of the node.
const (
	DefaultCompanyID uint16 = 0x05f1
	DefaultProductID uint16 = 0x0001
	DefaultVersionID uint16 = 0x0001
)

// DefaultPath is the application object path used by the simulator.
const DefaultPath = "/simulator"

// Application errors.
var (
	ErrElementNotFound  = errors.New("element not found")
	ErrDuplicateElement = errors.New("duplicate element index")
)

// Identity is the composition data identity of the node.
type Identity struct {
	CompanyID uint16
	ProductID uint16
	VersionID uint16
}

// DefaultIdentity returns the simulator identity.
func DefaultIdentity() Identity {
	return Identity{
		CompanyID: DefaultCompanyID,
		ProductID: DefaultProductID,
		VersionID: DefaultVersionID,
	}
}

// ModelConfig is a configuration update addressed to one model. Vendor is
// VendorNone for SIG models.
type ModelConfig struct {
	ID     uint16
	Vendor uint16
	Update ConfigUpdate
}

// ElementConfig groups the model configurations of one element, as handed
// over by the mesh daemon on attach.
type ElementConfig struct {
	Index  uint8
	Models []ModelConfig
}

// MessageObserver is notified of every delivered message, after the models
// of the element have processed it.
type MessageObserver func(e *Element, msg Message)

// AppOption configures an Application.
type AppOption func(*Application)

// WithIdentity sets the composition identity.
func WithIdentity(id Identity) AppOption {
	return func(a *Application) {
		a.identity = id
	}
}

// WithAppLogger sets the operational logger.
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(a *Application) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithProtocolLogger sets the protocol capture logger.
func WithProtocolLogger(l meshlog.Logger) AppOption {
	return func(a *Application) {
		a.capture = l
	}
}

// Application is the registry of a node's elements and the attachment point
// for its transport.
type Application struct {
	path     string
	identity Identity
	logger   *slog.Logger

	mu        sync.RWMutex
	elements  []*Element
	transport Transport
	capture   meshlog.Logger
	nodeID    string
	observers []MessageObserver
}

// NewApplication returns an application rooted at path.
func NewApplication(path string, opts ...AppOption) *Application {
	a := &Application{
		path:     path,
		identity: DefaultIdentity(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the application object path.
func (a *Application) Path() string {
	return a.path + "/application"
}

// RootPath returns the object path prefix shared by the elements.
func (a *Application) RootPath() string {
	return a.path
}

// Identity returns the composition identity.
func (a *Application) Identity() Identity {
	return a.identity
}

func (a *Application) elementPath(index uint8) string {
	return fmt.Sprintf("%s/ele%02x", a.path, index)
}

// AddElement registers an element. Indices must be unique.
func (a *Application) AddElement(e *Element) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, existing := range a.elements {
		if existing.Index() == e.Index() {
			return fmt.Errorf("%w: %d", ErrDuplicateElement, e.Index())
		}
	}
	a.elements = append(a.elements, e)
	slices.SortFunc(a.elements, func(x, y *Element) int {
		return int(x.Index()) - int(y.Index())
	})
	e.setApplication(a)
	return nil
}

// Elements returns the elements ordered by index.
func (a *Application) Elements() []*Element {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.elements)
}

// Element returns the element with the given index.
func (a *Application) Element(index uint8) (*Element, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.elements {
		if e.Index() == index {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrElementNotFound, index)
}

// ElementByLocation returns the first element with the given location.
func (a *Application) ElementByLocation(location uint16) (*Element, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.elements {
		if e.Location() == location {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: location 0x%04x", ErrElementNotFound, location)
}

// Deliver hands an inbound message to an element and then to the observers.
func (a *Application) Deliver(ctx context.Context, index uint8, msg Message) error {
	e, err := a.Element(index)
	if err != nil {
		a.logger.Debug("message for unknown element dropped", "element", index, "src", fmt.Sprintf("%04x", msg.Source))
		return err
	}
	e.ProcessInbound(ctx, msg)

	a.mu.RLock()
	observers := slices.Clone(a.observers)
	a.mu.RUnlock()
	for _, fn := range observers {
		fn(e, msg)
	}
	return nil
}

// OnMessage registers an observer for delivered messages.
func (a *Application) OnMessage(fn MessageObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

// ApplyConfig routes a configuration update to a SIG model of an element.
func (a *Application) ApplyConfig(index uint8, modelID uint16, update ConfigUpdate) error {
	e, err := a.Element(index)
	if err != nil {
		a.logger.Info("config for unknown element ignored", "element", index)
		return err
	}
	return e.ApplyConfig(modelID, update)
}

// ApplyElementConfigs applies the configuration dump received on attach.
// Every entry is attempted; the errors of missing targets are joined.
func (a *Application) ApplyElementConfigs(configs []ElementConfig) error {
	var errs []error
	for _, ec := range configs {
		e, err := a.Element(ec.Index)
		if err != nil {
			a.logger.Info("config for unknown element ignored", "element", ec.Index)
			errs = append(errs, err)
			continue
		}
		for _, mc := range ec.Models {
			if mc.Vendor == VendorNone {
				err = e.ApplyConfig(mc.ID, mc.Update)
			} else {
				err = e.ApplyVendorConfig(mc.Vendor, mc.ID, mc.Update)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Attach connects the application to a transport.
func (a *Application) Attach(t Transport) {
	a.mu.Lock()
	a.transport = t
	a.mu.Unlock()
	a.logger.Info("application attached", "path", a.Path())
}

// Transport returns the attached transport, nil when detached.
func (a *Application) Transport() Transport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transport
}

// SetNodeID sets the device UUID stamped on captured events.
func (a *Application) SetNodeID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodeID = id
}

// SetProtocolLogger replaces the protocol capture logger.
func (a *Application) SetProtocolLogger(l meshlog.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capture = l
}

// Close detaches the transport and stops every model timer. No publication
// happens after Close returns.
func (a *Application) Close() {
	for _, e := range a.Elements() {
		e.stop()
	}

	a.mu.Lock()
	a.transport = nil
	a.mu.Unlock()
	a.logger.Info("application closed", "path", a.Path())
}

// Info returns the composition identity and the element compositions.
func (a *Application) Info() AppInfo {
	info := AppInfo{Identity: a.identity}
	for _, e := range a.Elements() {
		info.Elements = append(info.Elements, e.Info())
	}
	return info
}

// AppInfo is the node composition.
type AppInfo struct {
	Identity Identity
	Elements []ElementInfo
}

// Capture records a protocol event on behalf of the node.
func (a *Application) Capture(event meshlog.Event) {
	a.record(event)
}

func (a *Application) record(event meshlog.Event) {
	a.mu.RLock()
	capture, nodeID := a.capture, a.nodeID
	a.mu.RUnlock()
	if capture == nil {
		return
	}
	if event.NodeID == "" {
		event.NodeID = nodeID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	capture.Log(event)
}
