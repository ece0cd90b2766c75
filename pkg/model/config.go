package model

import (
	"slices"
	"time"
)

// Config is the mutable configuration of a model.
type Config struct {
	// Bindings are the application key indices the model may use.
	Bindings []uint16

	// Subscriptions are the addresses the model listens on.
	Subscriptions []Address

	// PublicationPeriod is 0 when periodic publication is disabled.
	PublicationPeriod time.Duration
}

// Bound reports whether the key index is bound to the model.
func (c Config) Bound(keyIndex uint16) bool {
	return slices.Contains(c.Bindings, keyIndex)
}

// Subscribed reports whether the model listens on addr.
func (c Config) Subscribed(addr Address) bool {
	return slices.Contains(c.Subscriptions, addr)
}

func (c Config) clone() Config {
	return Config{
		Bindings:          slices.Clone(c.Bindings),
		Subscriptions:     slices.Clone(c.Subscriptions),
		PublicationPeriod: c.PublicationPeriod,
	}
}

// ConfigUpdate is a sparse configuration change. A nil field is absent and
// leaves the current value untouched; an empty non-nil slice clears it.
type ConfigUpdate struct {
	Bindings          []uint16
	Subscriptions     []Address
	PublicationPeriod *time.Duration
}

// Empty reports whether the update carries no field.
func (u ConfigUpdate) Empty() bool {
	return u.Bindings == nil && u.Subscriptions == nil && u.PublicationPeriod == nil
}

// Period returns a pointer to d, for building updates.
func Period(d time.Duration) *time.Duration {
	return &d
}

// PeriodMillis converts a publication period in milliseconds, as carried by
// the mesh daemon, to an update field.
func PeriodMillis(ms uint32) *time.Duration {
	return Period(time.Duration(ms) * time.Millisecond)
}

func (c *Config) apply(u ConfigUpdate) {
	if u.Bindings != nil {
		c.Bindings = slices.Clone(u.Bindings)
	}
	if u.Subscriptions != nil {
		c.Subscriptions = slices.Clone(u.Subscriptions)
	}
	if u.PublicationPeriod != nil {
		c.PublicationPeriod = *u.PublicationPeriod
	}
}
