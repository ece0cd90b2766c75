// Package meshtest provides test doubles for the mesh transport.
package meshtest

import (
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/model"
)

// Sent is one recorded outbound call.
type Sent struct {
	Publish bool

	Path     string
	Dst      model.Address
	KeyIndex uint16
	Options  model.SendOptions

	ModelID uint16
	Vendor  uint16

	Payload []byte
}

// Recorder is a model.Transport that records every call and completes it
// asynchronously with Err.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	err  error
	cond *sync.Cond
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// FailWith makes subsequent calls complete with err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Send records a message.
func (r *Recorder) Send(path string, dst model.Address, keyIndex uint16, opts model.SendOptions, payload []byte, done model.ResultFunc) {
	r.add(Sent{
		Path:     path,
		Dst:      dst,
		KeyIndex: keyIndex,
		Options:  opts,
		Payload:  append([]byte(nil), payload...),
	}, done)
}

// Publish records a publication.
func (r *Recorder) Publish(path string, modelID uint16, opts model.PublishOptions, payload []byte, done model.ResultFunc) {
	r.add(Sent{
		Publish: true,
		Path:    path,
		ModelID: modelID,
		Vendor:  opts.Vendor,
		Payload: append([]byte(nil), payload...),
	}, done)
}

func (r *Recorder) add(s Sent, done model.ResultFunc) {
	r.mu.Lock()
	r.sent = append(r.sent, s)
	err := r.err
	r.cond.Broadcast()
	r.mu.Unlock()

	if done != nil {
		go done(err)
	}
}

// All returns every recorded call.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Messages returns the recorded sends.
func (r *Recorder) Messages() []Sent {
	return r.filter(false)
}

// Publications returns the recorded publications.
func (r *Recorder) Publications() []Sent {
	return r.filter(true)
}

func (r *Recorder) filter(publish bool) []Sent {
	var out []Sent
	for _, s := range r.All() {
		if s.Publish == publish {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// WaitFor blocks until at least n calls are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	stop := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sent) < n {
		if !time.Now().Before(deadline) {
			return false
		}
		r.cond.Wait()
	}
	return true
}

var _ model.Transport = (*Recorder)(nil)
