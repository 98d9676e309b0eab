//go:build !rp2040 && !rp2350

// Command sensoragent runs one sensor agent on a Linux host: sensor on a
// periph.io I2C bus, an IIO ADC channel or its own serial port, commands and
// telemetry on a serial port.
//
//	sensoragent -sensor tlv493d -i2c i2c0=1 -uart uart0=/dev/ttyUSB0
//	sensoragent -profile rain.yaml -adc adc0=/sys/bus/iio/devices/iio:device0/in_voltage0_raw
//	sensoragent -sensor wind -uart uart0=/dev/ttyUSB0,uart1=/dev/ttyUSB1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"

	"sensoragent-go/bus"
	"sensoragent-go/services/agent"
	"sensoragent-go/services/agent/scheduler"
	"sensoragent-go/services/config"
	"sensoragent-go/services/hal/platform"
	"sensoragent-go/services/hal/uartio"
	"sensoragent-go/services/heartbeat"
	"sensoragent-go/x/logx"
)

// idMap is a repeatable "id=value" flag.
type idMap map[string]string

func (m idMap) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m idMap) Set(s string) error {
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || v == "" {
			return fmt.Errorf("want id=value, got %q", kv)
		}
		m[k] = v
	}
	return nil
}

var (
	profilePath = flag.String("profile", "", "YAML profile file; overrides -sensor")
	sensorName  = flag.String("sensor", config.SensorTLV493D, "built-in profile: "+strings.Join(config.Sensors(), ", "))
	configPath  = flag.String("config", "", "interval file; defaults to the profile's config_path")
	schedule    = flag.String("schedule", "", "loop, workers or timer; defaults to the profile's schedule")
	adcScale    = flag.Int("adc-scale", 1000, "IIO counts to millivolts, x1000")
	beat        = flag.Duration("heartbeat", time.Minute, "diagnostic heartbeat period")

	i2cBuses = idMap{}
	uarts    = idMap{}
	adcs     = idMap{}
)

func init() {
	flag.Var(i2cBuses, "i2c", "I2C bus ids, e.g. i2c0=1")
	flag.Var(uarts, "uart", "serial port ids, e.g. uart0=/dev/ttyUSB0")
	flag.Var(adcs, "adc", "ADC channel ids to IIO raw files")
}

func loadProfile() (config.Profile, error) {
	var (
		p   config.Profile
		err error
	)
	if *profilePath != "" {
		p, err = config.LoadFile(*profilePath)
	} else {
		p, err = config.Builtin(*sensorName)
	}
	if err != nil {
		return p, err
	}
	if *configPath != "" {
		p.ConfigPath = *configPath
	}
	if *schedule != "" {
		p.Schedule = config.Schedule(*schedule)
	}
	return p, p.Validate()
}

func main() {
	flag.Parse()
	defer logx.Flush()

	prof, err := loadProfile()
	if err != nil {
		glog.Exitf("profile: %v", err)
	}
	logx.Infof("agent %s: sensor=%s schedule=%s config=%s", prof.Name, prof.Sensor, prof.Schedule, prof.ConfigPath)

	plat, closer, err := platform.Open(platform.HostConfig{
		I2C:           i2cBuses,
		UART:          uarts,
		Baud:          int(prof.Baud),
		ADC:           adcs,
		ADCScaleMilli: *adcScale,
	})
	if err != nil {
		glog.Exitf("platform: %v", err)
	}
	defer closer.Close()

	cmdPort, ok := plat.UART.ByID(prof.UARTCmd)
	if !ok {
		glog.Exitf("no serial port for %s; pass -uart %s=<path>", prof.UARTCmd, prof.UARTCmd)
	}
	outPort, ok := plat.UART.ByID(prof.OutPort())
	if !ok {
		glog.Exitf("no serial port for %s; pass -uart %s=<path>", prof.OutPort(), prof.OutPort())
	}
	out := uartio.NewLineWriter(outPort)
	out.OnError = func(err error) { logx.Warnf("uart %s: %v", prof.OutPort(), err) }

	// A missing sensor still leaves the command protocol running; ticks
	// report "Sensor not initialized."
	sensor, err := agent.NewSensor(prof, plat, out.WriteLine)
	if err != nil {
		logx.Errorf("sensor: %v", err)
	}

	events := bus.NewBus(8)
	a := agent.New(agent.Options{
		Profile: prof,
		Sensor:  sensor,
		Store:   config.NewFileStore(prof.ConfigPath),
		Out:     out,
		Events:  events,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logEvents(ctx, events)

	a.Start()
	(&heartbeat.Service{Period: *beat, Events: events, Status: a}).Start(ctx)

	var in scheduler.Input
	if prof.Schedule == config.ScheduleLoop {
		in = &scheduler.PortInput{Port: cmdPort}
	} else {
		rd := uartio.New(16)
		cancel := rd.Register(ctx, uartio.ReaderCfg{Port: cmdPort, MaxFrame: 64})
		defer cancel()
		in = scheduler.ChunkInput(rd.Chunks())
	}

	err = scheduler.Run(ctx, a, in, scheduler.Options{
		Schedule:    prof.Schedule,
		CommandPoll: time.Duration(prof.CommandPollMS) * time.Millisecond,
		Events:      events,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logx.Errorf("scheduler: %v", err)
	}
	logx.Infof("agent %s stopped", prof.Name)
}

// logEvents mirrors agent events into the diagnostic log at -v=1.
func logEvents(ctx context.Context, events *bus.Bus) {
	sub := events.Subscribe(bus.T("agent", "#"))
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			if logx.V(1) {
				logx.Infof("event %s: %v", m.Topic, m.Payload)
			}
		}
	}
}
