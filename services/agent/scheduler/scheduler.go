// Package scheduler drives an agent's sampling ticks and command input in
// one of three shapes:
//
//	Loop      one goroutine: poll commands, tick, sleep the interval
//	Workers   a sampling goroutine and a command goroutine
//	RunTimer  a re-armed timer fires ticks; commands on the caller goroutine
//
// Every shape ticks at most once per interval and never overlaps ticks; an
// interval change applies from the next scheduled tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"sensoragent-go/bus"
	"sensoragent-go/errcode"
	"sensoragent-go/services/agent"
	"sensoragent-go/services/config"
	"sensoragent-go/services/hal/halcore"
	"sensoragent-go/services/hal/uartio"
	"sensoragent-go/x/logx"
)

// DefaultCommandPoll is the command goroutine's polling period.
const DefaultCommandPoll = 100 * time.Millisecond

// Agent is what a scheduler drives. *agent.Agent implements it.
type Agent interface {
	HandleBytes(chunk []byte)
	Tick() agent.TickResult
	TryTick() agent.TickResult
	NextWait(res agent.TickResult) time.Duration
	Interval() time.Duration
}

var _ Agent = (*agent.Agent)(nil)

// Input yields command bytes without blocking; nil means nothing arrived.
type Input interface {
	Poll() []byte
}

// InputFunc adapts a function to Input.
type InputFunc func() []byte

func (f InputFunc) Poll() []byte { return f() }

// PortInput reads directly from a port.
type PortInput struct {
	Port halcore.UARTPort
	buf  [64]byte
}

func (p *PortInput) Poll() []byte {
	var out []byte
	for {
		b := uartio.Poll(p.Port, p.buf[:])
		if b == nil {
			return out
		}
		out = append(out, b...)
	}
}

// ChunkInput drains a uartio reader's queue.
type ChunkInput <-chan uartio.Chunk

func (c ChunkInput) Poll() []byte {
	var out []byte
	for {
		select {
		case ch, ok := <-c:
			if !ok {
				return out
			}
			out = append(out, ch.Data...)
		default:
			return out
		}
	}
}

// Options selects and tunes a backend.
type Options struct {
	Schedule    config.Schedule
	CommandPoll time.Duration // Workers and RunTimer; default 100 ms
	Events      *bus.Bus      // RunTimer re-arms on interval events when set
}

// Run blocks until ctx ends, driving a with the configured shape.
func Run(ctx context.Context, a Agent, in Input, o Options) error {
	poll := o.CommandPoll
	if poll <= 0 {
		poll = DefaultCommandPoll
	}
	switch o.Schedule {
	case config.ScheduleLoop, "":
		return Loop(ctx, a, in)
	case config.ScheduleWorkers:
		return Workers(ctx, a, in, poll)
	case config.ScheduleTimer:
		return RunTimer(ctx, a, in, poll, o.Events)
	}
	return &errcode.E{C: errcode.InvalidParams, Op: "scheduler", Msg: "unknown schedule " + string(o.Schedule)}
}

// Loop is the cooperative shape. Command latency is bounded by the wait.
func Loop(ctx context.Context, a Agent, in Input) error {
	for {
		if b := in.Poll(); len(b) > 0 {
			a.HandleBytes(b)
		}
		res := a.Tick()
		if !sleep(ctx, a.NextWait(res)) {
			return ctx.Err()
		}
	}
}

// Workers runs sampling and command handling in parallel goroutines. The
// agent serializes state and bus access between them.
func Workers(ctx context.Context, a Agent, in Input, poll time.Duration) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			res := a.Tick()
			if !sleep(ctx, a.NextWait(res)) {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		commandLoop(ctx, a, in, poll, nil, nil)
	}()
	wg.Wait()
	return ctx.Err()
}

// RunTimer fires ticks from a Timer and handles commands on the calling
// goroutine. With events set, an interval change stops the running timer
// and arms a new one; otherwise the new interval is picked up when the
// timer re-arms after its next tick.
func RunTimer(ctx context.Context, a Agent, in Input, poll time.Duration, events *bus.Bus) error {
	tm := NewTimer(func() time.Duration {
		res := a.TryTick()
		if res.Skipped {
			logx.Infof("scheduler: tick skipped, bus busy")
		}
		return a.NextWait(res)
	})
	tm.Reset(a.Interval())
	defer tm.Stop()

	var intervals <-chan *bus.Message
	if events != nil {
		sub := events.Subscribe(agent.TopicInterval)
		defer sub.Unsubscribe()
		intervals = sub.Channel()
	}
	commandLoop(ctx, a, in, poll, intervals, func(m *bus.Message) {
		if d, ok := m.Payload.(time.Duration); ok && d > 0 && d != tm.Period() {
			tm.Reset(d)
		}
	})
	return ctx.Err()
}

// commandLoop polls in every poll period until ctx ends. Messages on ev go
// to onEvent.
func commandLoop(ctx context.Context, a Agent, in Input, poll time.Duration, ev <-chan *bus.Message, onEvent func(*bus.Message)) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if b := in.Poll(); len(b) > 0 {
				a.HandleBytes(b)
			}
		case m, ok := <-ev:
			if !ok {
				ev = nil
				continue
			}
			onEvent(m)
		}
	}
}

// sleep waits d or until ctx ends; it reports whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
