//go:build rp2040 || rp2350

// Command pico-agent is the RP2040/RP2350 build of the sensor agent. The
// sensor is chosen at link time:
//
//	tinygo flash -target pico -ldflags "-X main.sensorName=ltr390" ./cmd/pico-agent
package main

import (
	"context"
	"time"

	"sensoragent-go/bus"
	"sensoragent-go/services/agent"
	"sensoragent-go/services/agent/scheduler"
	"sensoragent-go/services/config"
	"sensoragent-go/services/hal/platform"
	"sensoragent-go/services/hal/uartio"
	"sensoragent-go/x/logx"
)

var sensorName = config.SensorTLV493D

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	prof, err := config.Builtin(sensorName)
	if err != nil {
		logx.Errorf("profile: %v", err)
		return
	}
	plat := platform.Default(prof.Baud)

	cmdPort, ok := plat.UART.ByID(prof.UARTCmd)
	if !ok {
		logx.Errorf("no uart %s", prof.UARTCmd)
		return
	}
	outPort, _ := plat.UART.ByID(prof.OutPort())
	if outPort == nil {
		outPort = cmdPort
	}
	out := uartio.NewLineWriter(outPort)

	sensor, err := agent.NewSensor(prof, plat, out.WriteLine)
	if err != nil {
		logx.Errorf("sensor: %v", err)
	}

	events := bus.NewBus(4)
	// No filesystem on the board: the interval lives until reset.
	a := agent.New(agent.Options{
		Profile: prof,
		Sensor:  sensor,
		Store:   config.NewMemStore(),
		Out:     out,
		Events:  events,
	})
	a.Start()
	logx.Infof("agent %s up, schedule %s", prof.Name, prof.Schedule)

	ctx := context.Background()
	var in scheduler.Input = &scheduler.PortInput{Port: cmdPort}
	if prof.Schedule != config.ScheduleLoop {
		rd := uartio.New(8)
		rd.Register(ctx, uartio.ReaderCfg{Port: cmdPort, MaxFrame: 64})
		in = scheduler.ChunkInput(rd.Chunks())
	}
	if err := scheduler.Run(ctx, a, in, scheduler.Options{
		Schedule:    prof.Schedule,
		CommandPoll: time.Duration(prof.CommandPollMS) * time.Millisecond,
		Events:      events,
	}); err != nil {
		logx.Errorf("scheduler: %v", err)
	}
}
