package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/meshmodel/pkg/model"
)

// FirstUnicastAddress is the primary address given to the first node.
const FirstUnicastAddress uint16 = 0x0100

// Loopback is an in-memory Network. Every node joined to it can reach
// every other by unicast, group, label or all-nodes address.
//
// All deliveries run on a single dispatcher goroutine, so models never see
// concurrent inbound messages and a model's reply is queued behind the
// message that caused it.
type Loopback struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	nodes    map[uint64]*node
	nextAddr uint16
	queue    []job
	closed   bool

	wake chan struct{}
	done chan struct{}
}

type job struct {
	run  func() error
	done model.ResultFunc
}

type modelKey struct {
	element uint8
	id      uint16
	vendor  uint16
}

type node struct {
	token   uint64
	id      uuid.UUID
	primary uint16
	count   int

	app      *model.Application
	attached bool

	configs map[modelKey]model.ConfigUpdate
	pubs    map[modelKey]model.Address
}

// NewLoopback starts a loopback network. Close stops it.
func NewLoopback(logger *slog.Logger) *Loopback {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loopback{
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		nodes:    make(map[uint64]*node),
		nextAddr: FirstUnicastAddress,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Join provisions app. Every model starts bound to application key 0 and
// JoinComplete is reported from the dispatcher.
func (l *Loopback) Join(_ context.Context, app *model.Application, id uuid.UUID, h JoinHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrNetworkClosed
	}
	for _, n := range l.nodes {
		if n.id == id {
			return fmt.Errorf("%w: %s", ErrAlreadyJoined, id)
		}
	}

	elements := app.Elements()
	n := &node{
		token:   l.newTokenLocked(),
		id:      id,
		primary: l.nextAddr,
		count:   len(elements),
		configs: make(map[modelKey]model.ConfigUpdate),
		pubs:    make(map[modelKey]model.Address),
	}
	for _, e := range elements {
		for _, m := range e.Models() {
			n.configs[modelKey{e.Index(), m.ID(), m.Vendor()}] = model.ConfigUpdate{Bindings: []uint16{0}}
		}
	}
	l.nextAddr += uint16(max(n.count, 1))
	l.nodes[n.token] = n

	l.logger.Info("node joined", "uuid", id, "primary", fmt.Sprintf("%04x", n.primary), "elements", n.count)

	token := n.token
	l.enqueueLocked(job{run: func() error {
		h.JoinComplete(token)
		return nil
	}})
	return nil
}

func (l *Loopback) newTokenLocked() uint64 {
	for {
		t := rand.Uint64()
		if _, taken := l.nodes[t]; t != 0 && !taken {
			return t
		}
	}
}

// Attach binds app to the node and returns its transport and configuration.
func (l *Loopback) Attach(_ context.Context, app *model.Application, token uint64) (model.Transport, []model.ElementConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, nil, ErrNetworkClosed
	}
	n, ok := l.nodes[token]
	if !ok {
		return nil, nil, ErrUnknownToken
	}
	n.app = app
	n.attached = true
	return &nodeTransport{net: l, node: n}, n.elementConfigs(), nil
}

// Leave removes a node.
func (l *Loopback) Leave(_ context.Context, token uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.nodes[token]; !ok {
		return ErrUnknownToken
	}
	delete(l.nodes, token)
	return nil
}

// Address returns the unicast address of an element of a node.
func (l *Loopback) Address(token uint64, element uint8) (uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.nodes[token]
	if !ok {
		return 0, ErrUnknownToken
	}
	if int(element) >= n.count {
		return 0, fmt.Errorf("%w: %d", model.ErrElementNotFound, element)
	}
	return n.primary + uint16(element), nil
}

// UpdateModelConfig changes the configuration of a model the way a
// configuration client would. Attached nodes receive the update from the
// dispatcher.
func (l *Loopback) UpdateModelConfig(token uint64, element uint8, mc model.ModelConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.nodes[token]
	if !ok {
		return ErrUnknownToken
	}
	key := modelKey{element, mc.ID, mc.Vendor}
	cur := n.configs[key]
	merge(&cur, mc.Update)
	n.configs[key] = cur

	if n.attached {
		app := n.app
		l.enqueueLocked(job{run: func() error {
			return app.ApplyElementConfigs([]model.ElementConfig{{Index: element, Models: []model.ModelConfig{mc}}})
		}})
	}
	return nil
}

// SetPublication sets the publication address and period of a model.
// Models publish to the all-nodes address until one is set.
func (l *Loopback) SetPublication(token uint64, element uint8, modelID, vendor uint16, dst model.Address, period time.Duration) error {
	l.mu.Lock()
	n, ok := l.nodes[token]
	if ok {
		n.pubs[modelKey{element, modelID, vendor}] = dst
	}
	l.mu.Unlock()

	if !ok {
		return ErrUnknownToken
	}
	return l.UpdateModelConfig(token, element, model.ModelConfig{
		ID:     modelID,
		Vendor: vendor,
		Update: model.ConfigUpdate{PublicationPeriod: model.Period(period)},
	})
}

// Flush waits until every job queued before the call has run.
func (l *Loopback) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrNetworkClosed
	}
	l.enqueueLocked(job{run: func() error {
		close(ch)
		return nil
	}})
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher. Queued sends complete with ErrNetworkClosed.
func (l *Loopback) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.signal()
	<-l.done
}

func (l *Loopback) enqueueLocked(j job) {
	l.queue = append(l.queue, j)
	l.signal()
}

func (l *Loopback) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loopback) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if l.closed {
			pending := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, j := range pending {
				if j.done != nil {
					j.done(ErrNetworkClosed)
				}
			}
			return
		}
		j := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		err := j.run()
		if j.done != nil {
			j.done(err)
		}
	}
}

type target struct {
	app   *model.Application
	index uint8
}

// route delivers payload from the element at src to dst.
func (l *Loopback) route(from *node, srcIndex uint8, dst model.Address, keyIndex uint16, payload []byte) error {
	src := from.primary + uint16(srcIndex)
	targets, err := l.targets(from, srcIndex, dst)
	if err != nil {
		return err
	}

	msg := model.Message{
		Source:      src,
		Destination: dst,
		KeyIndex:    keyIndex,
		Payload:     payload,
	}
	for _, t := range targets {
		_ = t.app.Deliver(l.ctx, t.index, msg)
	}
	return nil
}

func (l *Loopback) targets(from *node, srcIndex uint8, dst model.Address) ([]target, error) {
	l.mu.Lock()
	nodes := make([]*node, 0, len(l.nodes))
	for _, n := range l.nodes {
		if n.attached {
			nodes = append(nodes, n)
		}
	}
	l.mu.Unlock()

	slices.SortFunc(nodes, func(a, b *node) int { return int(a.primary) - int(b.primary) })

	if dst.IsUnicast() {
		for _, n := range nodes {
			if dst.Value() >= n.primary && int(dst.Value()) < int(n.primary)+n.count {
				return []target{{n.app, uint8(dst.Value() - n.primary)}}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", model.ErrNoRoute, dst)
	}

	var out []target
	for _, n := range nodes {
		for _, e := range n.app.Elements() {
			if n == from && e.Index() == srcIndex {
				continue
			}
			if !dst.IsVirtual() && dst.Value() == model.AllNodesAddress || subscribed(e, dst) {
				out = append(out, target{n.app, e.Index()})
			}
		}
	}
	return out, nil
}

func subscribed(e *model.Element, dst model.Address) bool {
	for _, m := range e.Models() {
		if m.Config().Subscribed(dst) {
			return true
		}
	}
	return false
}

func (n *node) elementConfigs() []model.ElementConfig {
	byElement := make(map[uint8][]model.ModelConfig)
	for k, u := range n.configs {
		byElement[k.element] = append(byElement[k.element], model.ModelConfig{ID: k.id, Vendor: k.vendor, Update: u})
	}

	out := make([]model.ElementConfig, 0, len(byElement))
	for idx, models := range byElement {
		slices.SortFunc(models, func(a, b model.ModelConfig) int { return int(a.ID) - int(b.ID) })
		out = append(out, model.ElementConfig{Index: idx, Models: models})
	}
	slices.SortFunc(out, func(a, b model.ElementConfig) int { return int(a.Index) - int(b.Index) })
	return out
}

func merge(cur *model.ConfigUpdate, u model.ConfigUpdate) {
	if u.Bindings != nil {
		cur.Bindings = slices.Clone(u.Bindings)
	}
	if u.Subscriptions != nil {
		cur.Subscriptions = slices.Clone(u.Subscriptions)
	}
	if u.PublicationPeriod != nil {
		cur.PublicationPeriod = model.Period(*u.PublicationPeriod)
	}
}

// nodeTransport is the model.Transport handed to an attached node.
type nodeTransport struct {
	net  *Loopback
	node *node
}

func (t *nodeTransport) Send(path string, dst model.Address, keyIndex uint16, _ model.SendOptions, payload []byte, done model.ResultFunc) {
	payload = slices.Clone(payload)
	t.submit(path, done, func(src uint8) error {
		return t.net.route(t.node, src, dst, keyIndex, payload)
	})
}

func (t *nodeTransport) Publish(path string, modelID uint16, opts model.PublishOptions, payload []byte, done model.ResultFunc) {
	payload = slices.Clone(payload)
	t.submit(path, done, func(src uint8) error {
		t.net.mu.Lock()
		dst, ok := t.node.pubs[modelKey{src, modelID, opts.Vendor}]
		t.net.mu.Unlock()
		if !ok {
			dst = model.NewAddress(model.AllNodesAddress)
		}
		return t.net.route(t.node, src, dst, 0, payload)
	})
}

func (t *nodeTransport) submit(path string, done model.ResultFunc, send func(src uint8) error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	if t.net.closed {
		if done != nil {
			go done(ErrNetworkClosed)
		}
		return
	}
	app := t.node.app
	t.net.enqueueLocked(job{
		run: func() error {
			idx, err := elementIndex(app, path)
			if err != nil {
				return err
			}
			return send(idx)
		},
		done: done,
	})
}

func elementIndex(app *model.Application, path string) (uint8, error) {
	for _, e := range app.Elements() {
		if e.Path() == path {
			return e.Index(), nil
		}
	}
	return 0, fmt.Errorf("%w: path %s", model.ErrElementNotFound, path)
}

var (
	_ Network         = (*Loopback)(nil)
	_ model.Transport = (*nodeTransport)(nil)
)
