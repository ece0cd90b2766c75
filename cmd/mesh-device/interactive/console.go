// Package interactive provides the command console of the mesh device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/meshmodel/pkg/mesh"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
	"github.com/mash-protocol/meshmodel/pkg/sensor"
)

// Node is the device the console drives.
type Node interface {
	Application() *model.Application
	Session() *mesh.Session
	OnOffClient(element uint8) (*onoff.Client, bool)
	SensorClient(element uint8) (*sensor.Client, bool)
	Board() *sensor.Board
	Address(element uint8) (uint16, error)
	SetPublication(element uint8, modelID, vendor uint16, dst model.Address, period time.Duration) error
}

// Simulation is the board simulation toggled by the console.
type Simulation interface {
	Start(interval time.Duration) error
	Stop()
	Running() bool
}

// Console is the interactive menu of the device.
type Console struct {
	node Node
	sim  Simulation
	out  io.Writer
	rl   *readline.Instance

	simInterval time.Duration

	dst           model.Address
	appKey        uint16
	element       uint8
	sensorElement uint8
}

// New creates a console reading from the terminal.
func New(node Node, sim Simulation, simInterval time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mesh> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(node, sim, simInterval, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(node Node, sim Simulation, simInterval time.Duration, out io.Writer) *Console {
	c := &Console{
		node:        node,
		sim:         sim,
		out:         out,
		simInterval: simInterval,
	}
	c.selectDefaults()
	return c
}

// selectDefaults targets the primary element and picks the first elements
// carrying an On/Off client and a sensor client.
func (c *Console) selectDefaults() {
	if addr, err := c.node.Address(0); err == nil {
		c.dst = model.NewAddress(addr)
	} else {
		c.dst = model.NewAddress(mesh.FirstUnicastAddress)
	}

	onoffSet, sensorSet := false, false
	for _, e := range c.node.Application().Elements() {
		if _, ok := c.node.OnOffClient(e.Index()); ok && !onoffSet {
			c.element, onoffSet = e.Index(), true
		}
		if _, ok := c.node.SensorClient(e.Index()); ok && !sensorSet {
			c.sensorElement, sensorSet = e.Index(), true
		}
	}
}

// Stdout returns a writer that does not disturb the prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if !c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console should
// exit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "get", "g":
		c.cmdGet()
	case "set", "s":
		c.cmdSet(args, true)
	case "unack", "u":
		c.cmdSet(args, false)
	case "repeat", "r":
		c.cmdRepeat()
	case "dest", "d":
		c.cmdDest(args)
	case "appkey", "k":
		c.cmdAppKey(args)
	case "element", "e":
		c.cmdElement(args)
	case "sensor":
		c.cmdSensor(args)
	case "pub":
		c.cmdPub(args)
	case "board", "b":
		c.cmdBoard()
	case "sim":
		c.cmdSim(args)
	case "status", "info":
		c.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Mesh Device Commands:
  On/Off client:
    get                - Get the state of the destination
    set <on|off>       - Acknowledged Set
    unack <on|off>     - Unacknowledged Set
    repeat             - Resend the last command, same transaction id
    element <idx>      - Select the element whose client sends

  Addressing:
    dest <addr>        - Destination: hex address or virtual label UUID
    appkey <idx>       - Application key index

  Sensor:
    sensor [property]  - Poll the destination, optionally one property (hex)
    board              - Show the simulated board
    sim <start|stop>   - Start or stop the board simulation

  Publication:
    pub <element> <model> <period> [addr]
                       - Set publication; model is hex, vendor as cccc:mmmm;
                         period 0 stops it

  General:
    status             - Show node status
    help               - Show this help
    quit               - Exit`)
}

func (c *Console) onoffClient() (*onoff.Client, bool) {
	cl, ok := c.node.OnOffClient(c.element)
	if !ok {
		fmt.Fprintf(c.out, "Element %d has no On/Off client\n", c.element)
	}
	return cl, ok
}

func (c *Console) cmdGet() {
	cl, ok := c.onoffClient()
	if !ok {
		return
	}
	cl.GetState(c.dst, c.appKey)
	fmt.Fprintf(c.out, "Get sent to %s\n", c.dst)
}

func (c *Console) cmdSet(args []string, ack bool) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: set <on|off>")
		return
	}
	state, ok := onoff.ParseState(args[0])
	if !ok {
		fmt.Fprintf(c.out, "Invalid state: %s\n", args[0])
		return
	}
	cl, ok := c.onoffClient()
	if !ok {
		return
	}

	tid := cl.NextTID()
	if ack {
		cl.SetState(c.dst, c.appKey, state)
	} else {
		cl.SetStateUnacknowledged(c.dst, c.appKey, state)
	}
	fmt.Fprintf(c.out, "Set %s sent to %s (tid %d)\n", state, c.dst, tid)
}

func (c *Console) cmdRepeat() {
	cl, ok := c.onoffClient()
	if !ok {
		return
	}
	if !cl.Repeat(c.dst, c.appKey) {
		fmt.Fprintln(c.out, "Nothing to repeat")
		return
	}
	fmt.Fprintf(c.out, "Repeated to %s\n", c.dst)
}

func (c *Console) cmdDest(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Destination: %s\n", c.dst)
		return
	}
	a, err := model.ParseAddress(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid address: %v\n", err)
		return
	}
	c.dst = a
	fmt.Fprintf(c.out, "Destination: %s\n", c.dst)
}

func (c *Console) cmdAppKey(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Application key index: %d\n", c.appKey)
		return
	}
	v, err := strconv.ParseUint(args[0], 0, 12)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid key index: %v\n", err)
		return
	}
	c.appKey = uint16(v)
	fmt.Fprintf(c.out, "Application key index: %d\n", c.appKey)
}

func (c *Console) cmdElement(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Sending element: %d\n", c.element)
		return
	}
	v, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid element: %v\n", err)
		return
	}
	if _, ok := c.node.OnOffClient(uint8(v)); !ok {
		fmt.Fprintf(c.out, "Element %d has no On/Off client\n", v)
		return
	}
	c.element = uint8(v)
	fmt.Fprintf(c.out, "Sending element: %d\n", c.element)
}

func (c *Console) cmdSensor(args []string) {
	cl, ok := c.node.SensorClient(c.sensorElement)
	if !ok {
		fmt.Fprintln(c.out, "No sensor client")
		return
	}
	var id uint16
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 16, 16)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid property id: %v\n", err)
			return
		}
		id = uint16(v)
	}
	cl.Get(c.dst, c.appKey, id)
	fmt.Fprintf(c.out, "Sensor Get sent to %s\n", c.dst)
}

func (c *Console) cmdPub(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: pub <element> <model> <period> [addr]")
		return
	}
	element, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid element: %v\n", err)
		return
	}
	id, vendor, err := parseModelID(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid model: %v\n", err)
		return
	}
	period, err := time.ParseDuration(args[2])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid period: %v\n", err)
		return
	}
	dst := model.NewAddress(model.AllNodesAddress)
	if len(args) > 3 {
		if dst, err = model.ParseAddress(args[3]); err != nil {
			fmt.Fprintf(c.out, "Invalid address: %v\n", err)
			return
		}
	}

	if err := c.node.SetPublication(uint8(element), id, vendor, dst, period); err != nil {
		fmt.Fprintf(c.out, "Publication not set: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Publication of %s on element %d: %s every %s\n", args[1], element, dst, period)
}

// parseModelID accepts "1000" for SIG models and "05f1:0001" for vendor
// models.
func parseModelID(s string) (id, vendor uint16, err error) {
	vendor = model.VendorNone
	if v, m, ok := strings.Cut(s, ":"); ok {
		cid, err := strconv.ParseUint(v, 16, 16)
		if err != nil {
			return 0, 0, err
		}
		vendor = uint16(cid)
		s = m
	}
	mid, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, 0, err
	}
	return uint16(mid), vendor, nil
}

func (c *Console) cmdBoard() {
	st := c.node.Board().State()
	fmt.Fprintln(c.out, "\nBoard")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Buttons:        %v\n", st.Buttons)
	fmt.Fprintf(c.out, "  LEDs:           %v\n", st.LEDs)
	fmt.Fprintf(c.out, "  Counters:       %d %d\n", st.Counter1, st.Counter2)
	fmt.Fprintf(c.out, "  Temperature:    %d\n", st.Temperature)
	fmt.Fprintf(c.out, "  Brightness:     %d\n", st.Brightness)
	fmt.Fprintf(c.out, "  Accelerometer:  %.2f %.2f %.2f\n", st.Accel.X, st.Accel.Y, st.Accel.Z)
	fmt.Fprintf(c.out, "  Battery:        0x%02x\n", st.Battery)
}

func (c *Console) cmdSim(args []string) {
	if c.sim == nil {
		fmt.Fprintln(c.out, "Simulation not available")
		return
	}
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Simulation running: %v\n", c.sim.Running())
		return
	}
	switch args[0] {
	case "start":
		if c.sim.Running() {
			fmt.Fprintln(c.out, "Simulation already running")
			return
		}
		if err := c.sim.Start(c.simInterval); err != nil {
			fmt.Fprintf(c.out, "Simulation not started: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, "Simulation started")
	case "stop":
		if !c.sim.Running() {
			fmt.Fprintln(c.out, "Simulation not running")
			return
		}
		c.sim.Stop()
		fmt.Fprintln(c.out, "Simulation stopped")
	default:
		fmt.Fprintln(c.out, "Usage: sim <start|stop>")
	}
}

func (c *Console) cmdStatus() {
	app := c.node.Application()
	fmt.Fprintln(c.out, "\nNode Status")
	fmt.Fprintln(c.out, "-------------------------------------------")
	if s := c.node.Session(); s != nil {
		fmt.Fprintf(c.out, "  UUID:           %s\n", s.UUID())
		fmt.Fprintf(c.out, "  State:          %s\n", s.State())
	}
	fmt.Fprintf(c.out, "  Destination:    %s\n", c.dst)
	fmt.Fprintf(c.out, "  App key index:  %d\n", c.appKey)
	fmt.Fprintf(c.out, "  Client element: %d\n", c.element)

	for _, e := range app.Elements() {
		addr := "----"
		if a, err := c.node.Address(e.Index()); err == nil {
			addr = fmt.Sprintf("%04x", a)
		}
		fmt.Fprintf(c.out, "\n  Element %d  addr %s  location 0x%04x\n", e.Index(), addr, e.Location())
		for _, m := range e.Models() {
			cfg := m.Config()
			subs := make([]string, 0, len(cfg.Subscriptions))
			for _, s := range cfg.Subscriptions {
				subs = append(subs, s.String())
			}
			fmt.Fprintf(c.out, "    %-12s keys %v  subs [%s]  pub %s\n",
				modelName(m), cfg.Bindings, strings.Join(subs, " "), cfg.PublicationPeriod)
		}
	}
}

func modelName(m model.Model) string {
	if m.Vendor() != model.VendorNone {
		return fmt.Sprintf("%04x:%04x", m.Vendor(), m.ID())
	}
	return fmt.Sprintf("%04x", m.ID())
}
