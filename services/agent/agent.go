// Package agent ties one sensor to the serial command protocol: it owns the
// device state, answers commands, and runs sampling ticks for a scheduler.
//
// Concurrency: HandleBytes must be called from a single goroutine (it owns
// the line assembler). Tick and TryTick may run on another goroutine; all
// sensor access is serialized by an internal bus mutex. A restart bumps a
// generation counter before it waits for that mutex, so a tick that was
// already reading when the restart arrived discards its result.
package agent

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sensoragent-go/bus"
	"sensoragent-go/errcode"
	"sensoragent-go/services/agent/protocol"
	"sensoragent-go/services/config"
	"sensoragent-go/x/logx"
)

// Event topics published on the optional bus.
var (
	TopicInterval = bus.T("agent", "interval") // retained, time.Duration
	TopicSample   = bus.T("agent", "sample")   // retained, Reading
	TopicRestart  = bus.T("agent", "restart")  // uint64 generation
)

// Output receives complete reply and telemetry lines. Implementations add
// the line terminator and must be safe for concurrent use.
type Output interface {
	WriteLine(s string)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(string)

func (f OutputFunc) WriteLine(s string) { f(s) }

type Options struct {
	Profile config.Profile
	Sensor  Sensor
	Store   config.Store
	Out     Output
	Events  *bus.Bus // optional
}

// TickResult describes one sampling tick.
type TickResult struct {
	Emitted   bool  // a line was written
	Sampled   bool  // a reading was accepted into the state
	Skipped   bool  // TryTick found the bus busy
	Discarded bool  // a restart overtook the read
	Err       error // read or init failure
}

type Agent struct {
	prof   config.Profile
	sensor Sensor
	store  config.Store
	out    Output
	events *bus.Bus

	state DeviceState
	asm   protocol.Assembler

	busMu sync.Mutex
	gen   atomic.Uint64
	ready atomic.Bool
}

func New(o Options) *Agent {
	if o.Store == nil {
		o.Store = config.NewMemStore()
	}
	if o.Out == nil {
		o.Out = OutputFunc(func(s string) { logx.Infof("%s", s) })
	}
	return &Agent{
		prof:   o.Profile,
		sensor: o.Sensor,
		store:  o.Store,
		out:    o.Out,
		events: o.Events,
	}
}

func (a *Agent) State() *DeviceState { return &a.state }

func (a *Agent) Interval() time.Duration { return a.state.Interval() }

func (a *Agent) Profile() config.Profile { return a.prof }

// Generation counts restarts.
func (a *Agent) Generation() uint64 { return a.gen.Load() }

// Ready reports whether the sensor bound on the last initialization.
func (a *Agent) Ready() bool { return a.ready.Load() }

// PendingInput returns the partial command line held by the assembler.
func (a *Agent) PendingInput() string { return a.asm.Pending() }

// Start clears the command buffer and runs the first initialization.
func (a *Agent) Start() {
	a.asm.Reset()
	if a.prof.ResetOnBoot {
		a.initialize(a.resetInterval())
		return
	}
	a.Initialize()
}

// Initialize loads the interval, resets the device state, binds the sensor
// and sends the banner. The command buffer is left alone so bytes that
// followed a restart command are still processed.
func (a *Agent) Initialize() {
	r := a.store.Load(a.prof.DefaultIntervalS)
	a.initialize(r)
}

func (a *Agent) initialize(r config.LoadResult) {
	if r.Err != nil {
		logx.Warnf("agent: interval %s: %v", r.Source, r.Err)
	} else if logx.V(1) {
		logx.Infof("agent: interval %d (%s)", r.Value, r.Source)
	}

	a.busMu.Lock()
	a.state.reset(time.Duration(r.Value) * time.Second)
	a.ready.Store(false)
	if a.sensor == nil {
		a.out.WriteLine("Sensor init error: no sensor configured")
	} else if err := a.sensor.Init(); err != nil {
		logx.Errorf("agent: %s init: %v", a.sensor.Name(), err)
		a.out.WriteLine("Sensor init error: " + err.Error())
	} else {
		a.ready.Store(true)
	}
	a.busMu.Unlock()

	a.publish(TopicInterval, a.state.Interval(), true)
	a.publish(TopicSample, nil, true)
	a.reply(a.prof.Replies.Banner, r.Value)
}

// reply writes tmpl expanded with arg. Templates without a verb are sent
// as they are; an empty template sends nothing.
func (a *Agent) reply(tmpl string, arg any) {
	if tmpl == "" {
		return
	}
	a.out.WriteLine(expand(tmpl, arg))
}

func expand(tmpl string, arg any) string {
	if !strings.Contains(tmpl, "%") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, arg)
}

// HandleBytes feeds raw input and dispatches every completed line in order.
func (a *Agent) HandleBytes(chunk []byte) {
	for _, line := range a.asm.Feed(chunk) {
		a.Dispatch(line)
	}
}

// Dispatch runs one command line. It never fails; problems become reply
// lines.
func (a *Agent) Dispatch(line string) {
	cmd := protocol.Parse(line)
	if a.prof.EchoRX && cmd.Kind != protocol.KindEmpty {
		a.out.WriteLine("RX: " + cmd.Line)
	}
	switch cmd.Kind {
	case protocol.KindEmpty:
	case protocol.KindRestart:
		a.restart()
	case protocol.KindSetInterval:
		a.setInterval(cmd.Interval)
	case protocol.KindInvalid:
		a.reply(a.invalidReply(cmd.Reason), nil)
	case protocol.KindUnknown:
		if a.prof.ReportUnknown {
			a.reply(a.prof.Replies.Unknown, cmd.Line)
		} else if logx.V(2) {
			logx.Infof("agent: ignored %q", cmd.Line)
		}
	}
}

func (a *Agent) invalidReply(r protocol.Reason) string {
	switch r {
	case protocol.ReasonInterval:
		return a.prof.Replies.InvalidInterval
	case protocol.ReasonNumber:
		return a.prof.Replies.InvalidNumber
	}
	return a.prof.Replies.BadFormat
}

func (a *Agent) setInterval(secs int) {
	if secs <= 0 || int64(secs) > config.MaxIntervalS || !a.state.SetInterval(time.Duration(secs)*time.Second) {
		a.reply(a.prof.Replies.InvalidInterval, nil)
		return
	}
	if err := a.store.Save(secs); err != nil {
		a.out.WriteLine("Error saving interval: " + err.Error())
	}
	a.publish(TopicInterval, a.state.Interval(), true)
	a.reply(a.prof.Replies.Updated, secs)
}

// restart resets the interval to the profile default and re-initializes.
func (a *Agent) restart() {
	a.reply(a.prof.Replies.Restarting, nil)
	g := a.gen.Add(1)
	a.publish(TopicRestart, g, false)

	r := a.resetInterval()
	if h, ok := a.sensor.(restartHook); ok {
		a.busMu.Lock()
		lines := h.OnRestart()
		a.busMu.Unlock()
		for _, l := range lines {
			a.out.WriteLine(l)
		}
	}
	a.initialize(r)
}

// resetInterval persists the profile default and reads it back. If the
// save fails the default still applies in memory.
func (a *Agent) resetInterval() config.LoadResult {
	def := a.prof.DefaultIntervalS
	if err := a.store.Save(def); err != nil {
		a.out.WriteLine("Error saving interval: " + err.Error())
		return config.LoadResult{Value: def, Source: config.SourceStored}
	}
	return a.store.Load(def)
}

// Tick runs one sample-and-emit, waiting for the bus if a restart holds it.
func (a *Agent) Tick() TickResult {
	a.busMu.Lock()
	defer a.busMu.Unlock()
	return a.tickLocked()
}

// TryTick is Tick for timer callbacks: it never waits and skips the tick
// while the bus is held (a restart re-binding the sensor, or a tick still
// running).
func (a *Agent) TryTick() TickResult {
	if !a.busMu.TryLock() {
		return TickResult{Skipped: true}
	}
	defer a.busMu.Unlock()
	return a.tickLocked()
}

func (a *Agent) tickLocked() TickResult {
	if !a.ready.Load() {
		a.out.WriteLine("Sensor not initialized.")
		return TickResult{Emitted: true, Err: errcode.NotInitialized}
	}

	g := a.gen.Load()
	r, err := a.sensor.Read()
	if a.gen.Load() != g {
		logx.Infof("agent: %s read overtaken by restart, result dropped", a.sensor.Name())
		return TickResult{Discarded: true}
	}
	if err != nil {
		logx.Warnf("agent: %s read: %v", a.sensor.Name(), err)
		a.out.WriteLine(a.failureLine(err))
		return TickResult{Emitted: true, Err: err}
	}
	if r == nil {
		return TickResult{}
	}
	a.state.setSample(r)
	a.publish(TopicSample, r, true)
	a.out.WriteLine(r.Telemetry())
	return TickResult{Emitted: true, Sampled: true}
}

func (a *Agent) failureLine(err error) string {
	if tmpl := a.prof.Replies.ReadFailed; tmpl != "" {
		return expand(tmpl, err)
	}
	if f, ok := a.sensor.(failureReporter); ok {
		return f.FailureLine(err)
	}
	return a.sensor.Name() + ": Read failed"
}

// NextWait is the delay before the tick after res. Event sensors are polled
// quickly until something is reported.
func (a *Agent) NextWait(res TickResult) time.Duration {
	if ev, ok := a.sensor.(eventSensor); ok && !res.Emitted {
		return ev.PollInterval()
	}
	return a.state.Interval()
}

// ReportError sends a generic error line. Used by schedulers for failures
// outside a tick.
func (a *Agent) ReportError(err error) {
	a.out.WriteLine("Error: " + err.Error())
}

func (a *Agent) publish(t bus.Topic, payload any, retained bool) {
	if a.events == nil {
		return
	}
	a.events.Publish(&bus.Message{Topic: t, Payload: payload, Retained: retained})
}
