//go:build !rp2040 && !rp2350

// Command agentctl is an interactive console for a sensor agent's serial
// command port. Replies and telemetry are printed as they arrive.
//
//	agentctl -port /dev/ttyUSB0
//	agentctl -port /dev/ttyUSB0 -e interval 10
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"go.bug.st/serial"

	"sensoragent-go/services/agent/protocol"
	"sensoragent-go/services/config"
)

var (
	portPath = flag.String("port", "/dev/ttyUSB0", "serial device of the agent's command port")
	baud     = flag.Int("baud", 115200, "baud rate")
	alt      = flag.Bool("alt", false, "use the SET_INTERVAL:/restartDevice dialect")
	evalOnly = flag.Bool("e", false, "run the command in the remaining arguments and exit")
	wait     = flag.Duration("wait", time.Second, "with -e, how long to print replies")
)

// dialect renders commands for one protocol variant.
type dialect struct{ alt bool }

func (d dialect) restart() string {
	if d.alt {
		return protocol.CmdRestartAlt
	}
	return protocol.CmdRestart
}

func (d dialect) interval(arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 || int64(n) > config.MaxIntervalS {
		return "", fmt.Errorf("interval must be 1..%d seconds, got %q", config.MaxIntervalS, arg)
	}
	if d.alt {
		return protocol.CmdIntervalAlt + strconv.Itoa(n), nil
	}
	return protocol.CmdIntervalPrefix + " " + strconv.Itoa(n), nil
}

// console owns the port: commands go out as newline-terminated lines, and a
// reader goroutine prints whole lines back through the shell.
type console struct {
	port    serial.Port
	shell   *ishell.Shell
	dialect dialect
	quit    chan struct{}
}

func (c *console) send(line string) error {
	_, err := c.port.Write([]byte(line + "\n"))
	return err
}

func (c *console) readLoop() {
	var asm protocol.Assembler
	buf := make([]byte, 256)
	for {
		select {
		case <-c.quit:
			return
		default:
		}
		n, err := c.port.Read(buf)
		if err != nil {
			glog.Warningf("read %s: %v", *portPath, err)
			return
		}
		for _, l := range asm.Feed(buf[:n]) {
			if l = strings.TrimRight(l, "\r"); l != "" {
				c.shell.Println("< " + l)
			}
		}
	}
}

func (c *console) commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "restart",
			Help: "reset the agent to its default interval",
			Func: func(ctx *ishell.Context) {
				if err := c.send(c.dialect.restart()); err != nil {
					ctx.Err(err)
				}
			},
		},
		{
			Name:    "interval",
			Aliases: []string{"i"},
			Help:    "SECONDS: set and persist the sampling interval",
			Func: func(ctx *ishell.Context) {
				if len(ctx.Args) != 1 {
					ctx.Err(fmt.Errorf("usage: interval SECONDS"))
					return
				}
				line, err := c.dialect.interval(ctx.Args[0])
				if err != nil {
					ctx.Err(err)
					return
				}
				if err := c.send(line); err != nil {
					ctx.Err(err)
				}
			},
		},
		{
			Name: "raw",
			Help: "TEXT: send TEXT as one line",
			Func: func(ctx *ishell.Context) {
				if err := c.send(strings.Join(ctx.Args, " ")); err != nil {
					ctx.Err(err)
				}
			},
		},
		{
			Name: "dialect",
			Help: "std|alt: switch command wording",
			Func: func(ctx *ishell.Context) {
				if len(ctx.Args) == 1 {
					c.dialect.alt = ctx.Args[0] == "alt"
				}
				if c.dialect.alt {
					ctx.Println("alt (SET_INTERVAL:, restartDevice)")
				} else {
					ctx.Println("std (Interval Configuration :, Restart Device)")
				}
			},
		},
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	p, err := serial.Open(*portPath, &serial.Mode{BaudRate: *baud})
	if err != nil {
		glog.Exitf("open %s: %v", *portPath, err)
	}
	defer p.Close()
	if err := p.SetReadTimeout(200 * time.Millisecond); err != nil {
		glog.Exitf("%s: %v", *portPath, err)
	}

	c := &console{port: p, shell: ishell.New(), dialect: dialect{alt: *alt}, quit: make(chan struct{})}
	for _, cmd := range c.commands() {
		c.shell.AddCmd(cmd)
	}
	c.shell.SetPrompt(*portPath + " > ")
	go c.readLoop()
	defer close(c.quit)

	if *evalOnly {
		if err := c.shell.Process(flag.Args()...); err != nil {
			glog.Exitf("%v", err)
		}
		time.Sleep(*wait)
		return
	}
	c.shell.Run()
}
