package model

import "errors"

// Transport errors.
var (
	ErrNotAttached = errors.New("application not attached to a network")
	ErrNoRoute     = errors.New("no route to destination")
)

// SendOptions carries per-message transport flags.
type SendOptions struct {
	ForceSegmented bool
}

// PublishOptions carries per-publication transport flags.
type PublishOptions struct {
	// Vendor is set for vendor model publications, VendorNone otherwise.
	Vendor uint16
}

// ResultFunc receives the outcome of an asynchronous send. A nil error means
// the transport accepted the message.
type ResultFunc func(err error)

// Transport carries outbound traffic for the elements of an application.
//
// Send and Publish must not block and must not deliver synchronously into
// any model of the same node; done is called from the transport's own
// goroutine.
type Transport interface {
	// Send sends payload from the element at path to dst.
	Send(path string, dst Address, keyIndex uint16, opts SendOptions, payload []byte, done ResultFunc)

	// Publish publishes payload on the publication address of the model
	// identified by path and modelID.
	Publish(path string, modelID uint16, opts PublishOptions, payload []byte, done ResultFunc)
}
