package agent

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sensoragent-go/bus"
	"sensoragent-go/errcode"
	"sensoragent-go/services/config"
)

// lines collects output.
type lines struct {
	mu sync.Mutex
	l  []string
}

func (o *lines) WriteLine(s string) {
	o.mu.Lock()
	o.l = append(o.l, s)
	o.mu.Unlock()
}

func (o *lines) take() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.l
	o.l = nil
	return out
}

type textReading string

func (r textReading) Telemetry() string { return string(r) }

// fakeSensor returns scripted readings. block, when set, holds Read until
// released.
type fakeSensor struct {
	mu      sync.Mutex
	initErr error
	inits   int
	reads   int
	next    Reading
	readErr error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSensor) Name() string { return "FAKE" }

func (f *fakeSensor) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeSensor) Read() (Reading, error) {
	f.mu.Lock()
	f.reads++
	block, entered := f.block, f.entered
	r, err := f.next, f.readErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return r, err
}

func newAgent(t *testing.T, s Sensor, store config.Store) (*Agent, *lines) {
	t.Helper()
	prof, err := config.Builtin(config.SensorTLV493D)
	require.NoError(t, err)
	out := &lines{}
	a := New(Options{Profile: prof, Sensor: s, Store: store, Out: out})
	return a, out
}

func TestStart_BannerAndDefault(t *testing.T) {
	s := &fakeSensor{}
	a, out := newAgent(t, s, config.NewMemStore())
	a.Start()

	require.Equal(t, []string{"System Restarted. Current interval: 1 seconds."}, out.take())
	require.Equal(t, time.Second, a.Interval())
	require.True(t, a.Ready())
	require.Equal(t, 1, s.inits)
}

func TestStart_LoadsStoredInterval(t *testing.T) {
	a, out := newAgent(t, &fakeSensor{}, config.NewMemStore("4"))
	a.Start()
	require.Equal(t, []string{"System Restarted. Current interval: 4 seconds."}, out.take())
	require.Equal(t, 4*time.Second, a.Interval())
}

func TestSetInterval_PersistsAndSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	for _, n := range []int{1, 2, 17, 3600, 86400} {
		a, out := newAgent(t, &fakeSensor{}, config.NewFileStore(path))
		a.Start()
		out.take()

		a.HandleBytes([]byte(fmt.Sprintf("Interval Configuration : %d\n", n)))
		require.Equal(t, []string{fmt.Sprintf("Interval updated to %d seconds.", n)}, out.take())
		require.Equal(t, time.Duration(n)*time.Second, a.Interval())

		// A fresh agent on the same file recovers the value.
		b, _ := newAgent(t, &fakeSensor{}, config.NewFileStore(path))
		b.Start()
		require.Equal(t, time.Duration(n)*time.Second, b.Interval())
	}
}

func TestSetInterval_InvalidKeepsPrior(t *testing.T) {
	store := config.NewMemStore("2")
	a, out := newAgent(t, &fakeSensor{}, store)
	a.Start()
	out.take()

	cases := map[string]string{
		"Interval Configuration : 0\n":   "Invalid interval: must be > 0.",
		"Interval Configuration : -1\n":  "Invalid interval: must be > 0.",
		"Interval Configuration : abc\n": "Invalid number. Use: Interval Configuration : <number>",
		"Interval Configuration 9\n":     "Command format invalid.",
	}
	for in, want := range cases {
		a.HandleBytes([]byte(in))
		require.Equal(t, []string{want}, out.take(), in)
		require.Equal(t, 2*time.Second, a.Interval(), in)
	}
	require.Equal(t, 0, store.Saves)
}

func TestSetInterval_SaveFailureKeepsChange(t *testing.T) {
	store := config.NewMemStore()
	store.SaveErr = errors.New("read-only fs")
	a, out := newAgent(t, &fakeSensor{}, store)
	a.Start()
	out.take()

	a.HandleBytes([]byte("SET_INTERVAL:5\n"))
	got := out.take()
	require.Len(t, got, 2)
	require.Contains(t, got[0], "Error saving interval: ")
	require.Contains(t, got[0], "read-only fs")
	require.Equal(t, "Interval updated to 5 seconds.", got[1])
	require.Equal(t, 5*time.Second, a.Interval())
}

func TestRestart_MidAccumulationKeepsRemainder(t *testing.T) {
	s := &fakeSensor{}
	store := config.NewMemStore("6")
	a, out := newAgent(t, s, store)
	a.Start()
	out.take()

	a.HandleBytes([]byte("Restart Device\nInterval Conf"))
	require.Equal(t, []string{"System Restarted. Current interval: 1 seconds."}, out.take())
	require.Equal(t, "Interval Conf", a.PendingInput())
	require.Equal(t, time.Second, a.Interval())
	require.Equal(t, 1, store.Load(9).Value)
	require.Equal(t, 2, s.inits)
	require.Equal(t, uint64(1), a.Generation())

	a.HandleBytes([]byte("iguration : 3\n"))
	require.Equal(t, []string{"Interval updated to 3 seconds."}, out.take())
	require.Equal(t, 3*time.Second, a.Interval())
}

func TestRestart_SaveFailureStillUsesDefault(t *testing.T) {
	store := config.NewMemStore("8")
	a, out := newAgent(t, &fakeSensor{}, store)
	a.Start()
	out.take()

	store.SaveErr = errors.New("eio")
	a.HandleBytes([]byte("restartDevice\n"))
	got := out.take()
	require.Len(t, got, 2)
	require.Contains(t, got[0], "Error saving interval")
	require.Equal(t, "System Restarted. Current interval: 1 seconds.", got[1])
	require.Equal(t, time.Second, a.Interval())
}

func TestUnknownCommand_Dialects(t *testing.T) {
	a, out := newAgent(t, &fakeSensor{}, nil)
	a.Start()
	out.take()
	a.HandleBytes([]byte("hello\n\n"))
	require.Empty(t, out.take())

	prof, _ := config.Builtin(config.SensorLTR390)
	out2 := &lines{}
	b := New(Options{Profile: prof, Sensor: &fakeSensor{}, Out: out2})
	b.Start()
	out2.take()
	b.HandleBytes([]byte("hello\nSET_INTERVAL:2\n"))
	require.Equal(t, []string{
		"RX: hello", "Unknown command",
		"RX: SET_INTERVAL:2", "Interval set to 2 seconds",
	}, out2.take())
}

func newProfileAgent(t *testing.T, sensor string, s Sensor, store config.Store) (*Agent, *lines) {
	t.Helper()
	prof, err := config.Builtin(sensor)
	require.NoError(t, err)
	out := &lines{}
	return New(Options{Profile: prof, Sensor: s, Store: store, Out: out}), out
}

func TestReplies_ShortDialect(t *testing.T) {
	s := &fakeSensor{readErr: errors.New("nack")}
	a, out := newProfileAgent(t, config.SensorLIS3DH, s, config.NewMemStore())
	a.Start()
	require.Equal(t, []string{"System Restarted. Interval: 1 sec"}, out.take())

	a.HandleBytes([]byte("Interval Configuration : 3\nInterval Configuration : 0\nInterval Configuration : x\nInterval Configuration 3\n"))
	require.Equal(t, []string{
		"Interval updated: 3 sec",
		"Invalid interval (>0)",
		"Invalid number",
		"Command format invalid",
	}, out.take())

	a.Tick()
	require.Equal(t, []string{"Error reading axes: nack"}, out.take())
}

func TestReplies_TimerDialects(t *testing.T) {
	a, out := newProfileAgent(t, config.SensorSTTS751, &fakeSensor{}, config.NewMemStore())
	a.Start()
	require.Equal(t, []string{"System Restarted. Current interval: 5 seconds."}, out.take())

	a.HandleBytes([]byte("SET_INTERVAL:4\nhello\nrestartDevice\n"))
	require.Equal(t, []string{
		"RX: SET_INTERVAL:4", "Interval set to 4s",
		"RX: hello", "Unknown command: hello",
		"RX: restartDevice", "Restarting device...",
		"System Restarted. Current interval: 5 seconds.",
	}, out.take())

	uv, out := newProfileAgent(t, config.SensorLTR390, &fakeSensor{}, nil)
	uv.Start()
	out.take()
	uv.HandleBytes([]byte("restartDevice\n"))
	require.Equal(t, []string{
		"RX: restartDevice", "Restarting device...",
		"System Restarted. Current interval: 1 seconds.",
	}, out.take())
}

func TestReplies_EmptyTemplateSendsNothing(t *testing.T) {
	prof, _ := config.Builtin(config.SensorTLV493D)
	prof.Replies.Updated = ""
	prof.Replies.Banner = "up %d"
	out := &lines{}
	a := New(Options{Profile: prof, Sensor: &fakeSensor{}, Out: out})
	a.Start()
	a.HandleBytes([]byte("SET_INTERVAL:9\n"))
	require.Equal(t, []string{"up 1"}, out.take())
	require.Equal(t, 9*time.Second, a.Interval())
}

func TestSetInterval_OverflowRejected(t *testing.T) {
	store := config.NewMemStore("2")
	a, out := newAgent(t, &fakeSensor{}, store)
	a.Start()
	out.take()

	for _, v := range []string{"20000000000", "10000000000", "9223372037"} {
		a.HandleBytes([]byte("Interval Configuration : " + v + "\nSET_INTERVAL:" + v + "\n"))
		require.Equal(t, []string{
			"Invalid number. Use: Interval Configuration : <number>",
			"Invalid number. Use: Interval Configuration : <number>",
		}, out.take(), v)
		require.Equal(t, 2*time.Second, a.Interval(), v)
	}
	require.Equal(t, 0, store.Saves)
	require.Equal(t, 2, store.Load(1).Value)
}

func TestStart_OutOfRangeStoredUsesDefault(t *testing.T) {
	a, out := newAgent(t, &fakeSensor{}, config.NewMemStore("20000000000"))
	a.Start()
	require.Equal(t, []string{"System Restarted. Current interval: 1 seconds."}, out.take())
	require.Equal(t, time.Second, a.Interval())
}

func TestSetInterval_IgnoresAfterSecondColon(t *testing.T) {
	store := config.NewMemStore()
	a, out := newAgent(t, &fakeSensor{}, store)
	a.Start()
	out.take()

	a.HandleBytes([]byte("Interval Configuration : 5 : 6\n"))
	require.Equal(t, []string{"Interval updated to 5 seconds."}, out.take())
	require.Equal(t, 5*time.Second, a.Interval())
	require.Equal(t, 5, store.Load(1).Value)
}

func TestTick_EmitsAndUpdatesState(t *testing.T) {
	s := &fakeSensor{next: textReading("FAKE: v=1")}
	a, out := newAgent(t, s, nil)
	a.Start()
	out.take()

	res := a.Tick()
	require.True(t, res.Sampled)
	require.Equal(t, []string{"FAKE: v=1"}, out.take())
	require.Equal(t, textReading("FAKE: v=1"), a.State().LastSample())
}

func TestTick_FailureKeepsPreviousSample(t *testing.T) {
	s := &fakeSensor{next: textReading("good")}
	a, out := newAgent(t, s, nil)
	a.Start()
	a.Tick()
	out.take()

	s.mu.Lock()
	s.next, s.readErr = nil, errors.New("nack")
	s.mu.Unlock()
	res := a.Tick()
	require.Error(t, res.Err)
	require.Equal(t, []string{"FAKE: Read failed"}, out.take())
	require.Equal(t, textReading("good"), a.State().LastSample())
	require.Equal(t, uint64(1), a.State().Samples())
}

func TestTick_SensorNotInitialized(t *testing.T) {
	s := &fakeSensor{initErr: errors.New("LIS3DH not found on I2C bus")}
	a, out := newAgent(t, s, nil)
	a.Start()
	require.Equal(t, []string{
		"Sensor init error: LIS3DH not found on I2C bus",
		"System Restarted. Current interval: 1 seconds.",
	}, out.take())

	res := a.Tick()
	require.Equal(t, errcode.NotInitialized, errcode.Of(res.Err))
	require.Equal(t, []string{"Sensor not initialized."}, out.take())
	require.Equal(t, 0, s.reads)

	nilSensor, out2 := newAgent(t, nil, nil)
	nilSensor.Start()
	nilSensor.Tick()
	require.Contains(t, out2.take(), "Sensor not initialized.")
}

func TestTick_RestartDiscardsInFlightRead(t *testing.T) {
	block := make(chan struct{})
	s := &fakeSensor{
		next:    textReading("stale"),
		block:   block,
		entered: make(chan struct{}, 1),
	}
	a, out := newAgent(t, s, nil)
	a.Start()
	out.take()

	done := make(chan TickResult, 1)
	go func() { done <- a.Tick() }()
	<-s.entered

	// TryTick must not wait on the bus while a tick is running.
	require.True(t, a.TryTick().Skipped)

	restarted := make(chan struct{})
	go func() {
		a.HandleBytes([]byte("Restart Device\n"))
		close(restarted)
	}()
	require.Eventually(t, func() bool { return a.Generation() == 1 }, time.Second, time.Millisecond)
	close(block)

	res := <-done
	require.True(t, res.Discarded)
	<-restarted
	require.Nil(t, a.State().LastSample())
	require.NotContains(t, out.take(), "stale")
}

func TestEventsPublished(t *testing.T) {
	ev := bus.NewBus(8)
	prof, _ := config.Builtin(config.SensorTLV493D)
	a := New(Options{Profile: prof, Sensor: &fakeSensor{next: textReading("x")}, Out: &lines{}, Events: ev})
	a.Start()

	sub := ev.Subscribe(TopicInterval)
	m := <-sub.Channel()
	require.Equal(t, time.Second, m.Payload)

	a.HandleBytes([]byte("Interval Configuration : 7\n"))
	m = <-sub.Channel()
	require.Equal(t, 7*time.Second, m.Payload)

	a.Tick()
	got, ok := ev.Retained(TopicSample)
	require.True(t, ok)
	require.Equal(t, textReading("x"), got.Payload)
}

func TestStart_ResetOnBootDiscardsStored(t *testing.T) {
	store := config.NewMemStore("9")
	a, out := newProfileAgent(t, config.SensorSHT40, &fakeSensor{}, store)
	a.Start()
	require.Equal(t, []string{"System Restarted. Current interval: 1 seconds."}, out.take())
	require.Equal(t, time.Second, a.Interval())
	require.Equal(t, 1, store.Load(2).Value)

	store.SaveErr = errors.New("eio")
	a.Start()
	got := out.take()
	require.Len(t, got, 2)
	require.Contains(t, got[0], "Error saving interval")
	require.Equal(t, time.Second, a.Interval())
}
