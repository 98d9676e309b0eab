// Package config holds agent profiles (which sensor, which ports, which
// scheduling shape) and the persisted sampling interval.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sensoragent-go/errcode"
)

type Schedule string

const (
	ScheduleLoop    Schedule = "loop"    // one cooperative loop
	ScheduleWorkers Schedule = "workers" // sampler + command goroutines
	ScheduleTimer   Schedule = "timer"   // timer callback + command goroutine
)

// Sensor names.
const (
	SensorTLV493D   = "tlv493d"
	SensorLIS3DH    = "lis3dh"
	SensorLTR390    = "ltr390"
	SensorRainGauge = "raingauge"
	SensorSHTC3     = "shtc3"
	SensorAHT20     = "aht20"
	SensorSTTS751   = "stts751"
	SensorSHT40     = "sht40"
	SensorVEML7700  = "veml7700"
	SensorVL53L0X   = "vl53l0x"
	SensorHall      = "hall"
	SensorIR        = "ir"
	SensorWind      = "wind"
)

// analogSensors read an ADC channel instead of an I2C bus.
var analogSensors = map[string]bool{SensorRainGauge: true, SensorHall: true, SensorIR: true}

// serialSensors report over their own UART.
var serialSensors = map[string]bool{SensorWind: true}

// Replies is the operator-facing text of one agent dialect. A template takes
// at most one verb: the interval in seconds for Banner and Updated, the
// received line for Unknown, the error for ReadFailed. An empty template
// sends nothing.
type Replies struct {
	Banner          string `yaml:"banner"`
	Updated         string `yaml:"updated"`
	InvalidInterval string `yaml:"invalid_interval"`
	InvalidNumber   string `yaml:"invalid_number"`
	BadFormat       string `yaml:"bad_format"`
	Unknown         string `yaml:"unknown"`     // only with ReportUnknown
	Restarting      string `yaml:"restarting"`  // before a restart re-initializes
	ReadFailed      string `yaml:"read_failed"` // overrides the sensor's failure line
}

// DefaultReplies is the dialect most agents speak.
var DefaultReplies = Replies{
	Banner:          "System Restarted. Current interval: %d seconds.",
	Updated:         "Interval updated to %d seconds.",
	InvalidInterval: "Invalid interval: must be > 0.",
	InvalidNumber:   "Invalid number. Use: Interval Configuration : <number>",
	BadFormat:       "Command format invalid.",
	Unknown:         "Unknown command",
}

// shortReplies is the terse dialect of the LIS3DH and Hall agents.
var shortReplies = Replies{
	Banner:          "System Restarted. Interval: %d sec",
	Updated:         "Interval updated: %d sec",
	InvalidInterval: "Invalid interval (>0)",
	InvalidNumber:   "Invalid number",
	BadFormat:       "Command format invalid",
}

// replies fills the empty fields of r from DefaultReplies. Restarting and
// ReadFailed have no default.
func replies(r Replies) Replies {
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&r.Banner, DefaultReplies.Banner)
	fill(&r.Updated, DefaultReplies.Updated)
	fill(&r.InvalidInterval, DefaultReplies.InvalidInterval)
	fill(&r.InvalidNumber, DefaultReplies.InvalidNumber)
	fill(&r.BadFormat, DefaultReplies.BadFormat)
	fill(&r.Unknown, DefaultReplies.Unknown)
	return r
}

// Profile describes one agent build.
type Profile struct {
	Name   string `yaml:"name"`
	Sensor string `yaml:"sensor"`

	I2C        string `yaml:"i2c"`         // bus id, e.g. "i2c0"
	ADC        string `yaml:"adc"`         // channel id for ADC sensors
	UARTSensor string `yaml:"uart_sensor"` // sensor input port id for serial sensors
	UARTCmd    string `yaml:"uart_cmd"`    // command input port id
	UARTOut    string `yaml:"uart_out"`    // telemetry/reply port id; may equal UARTCmd
	Baud       uint32 `yaml:"baud"`

	// Threshold is the ADC level (mV) for threshold sensors; zero keeps
	// the sensor's default.
	Threshold uint16 `yaml:"threshold"`

	ConfigPath       string   `yaml:"config_path"`
	DefaultIntervalS int      `yaml:"default_interval_s"`
	Schedule         Schedule `yaml:"schedule"`
	CommandPollMS    int      `yaml:"command_poll_ms"`
	// ResetOnBoot persists DefaultIntervalS at every start, discarding the
	// stored value, as a restart does.
	ResetOnBoot bool `yaml:"reset_on_boot"`

	// UV-style dialect: reply "Unknown command" and echo "RX: <cmd>".
	ReportUnknown bool `yaml:"report_unknown"`
	EchoRX        bool `yaml:"echo_rx"`

	Replies Replies `yaml:"replies"`
}

var builtin = map[string]Profile{
	SensorTLV493D: {
		Name: "tlv493d", Sensor: SensorTLV493D,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(Replies{}),
	},
	SensorLIS3DH: {
		Name: "lis3dh", Sensor: SensorLIS3DH,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(Replies{
			Banner: shortReplies.Banner, Updated: shortReplies.Updated,
			InvalidInterval: shortReplies.InvalidInterval, InvalidNumber: shortReplies.InvalidNumber,
			BadFormat: shortReplies.BadFormat, ReadFailed: "Error reading axes: %v",
		}),
	},
	SensorLTR390: {
		Name: "uv-ltr390", Sensor: SensorLTR390,
		I2C: "i2c0", UARTCmd: "uart1", UARTOut: "uart1", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleTimer,
		CommandPollMS: 100, ReportUnknown: true, EchoRX: true,
		Replies: replies(Replies{Updated: "Interval set to %d seconds", Restarting: "Restarting device..."}),
	},
	SensorRainGauge: {
		Name: "rain-gauge", Sensor: SensorRainGauge,
		ADC: "adc0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/interval.txt", DefaultIntervalS: 1, Schedule: ScheduleWorkers,
		CommandPollMS: 100,
		Replies:       replies(Replies{}),
	},
	SensorSHTC3: {
		Name: "shtc3", Sensor: SensorSHTC3,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleTimer,
		CommandPollMS: 100,
		Replies:       replies(Replies{}),
	},
	SensorAHT20: {
		Name: "aht20", Sensor: SensorAHT20,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 2, Schedule: ScheduleLoop,
		Replies: replies(Replies{}),
	},
	SensorSTTS751: {
		Name: "stts751", Sensor: SensorSTTS751,
		I2C: "i2c0", UARTCmd: "uart1", UARTOut: "uart1", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 5, Schedule: ScheduleTimer,
		CommandPollMS: 100, ReportUnknown: true, EchoRX: true,
		Replies: replies(Replies{
			Updated: "Interval set to %ds", Restarting: "Restarting device...", Unknown: "Unknown command: %s",
		}),
	},
	SensorSHT40: {
		Name: "sht40", Sensor: SensorSHT40,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		ResetOnBoot: true,
		Replies:     replies(Replies{}),
	},
	SensorVEML7700: {
		Name: "veml7700", Sensor: SensorVEML7700,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 2, Schedule: ScheduleLoop,
		Replies: replies(Replies{Banner: "System Restarted. Interval: %d seconds."}),
	},
	SensorVL53L0X: {
		Name: "tof-vl53l0x", Sensor: SensorVL53L0X,
		I2C: "i2c0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(Replies{}),
	},
	SensorHall: {
		Name: "hall-effect", Sensor: SensorHall,
		ADC: "adc0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(shortReplies),
	},
	SensorIR: {
		Name: "ir", Sensor: SensorIR,
		ADC: "adc0", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(Replies{
			InvalidInterval: shortReplies.InvalidInterval, InvalidNumber: shortReplies.InvalidNumber,
			BadFormat: shortReplies.BadFormat,
		}),
	},
	SensorWind: {
		Name: "wind", Sensor: SensorWind,
		UARTSensor: "uart1", UARTCmd: "uart0", UARTOut: "uart0", Baud: 115200,
		ConfigPath: "/usr/config.txt", DefaultIntervalS: 1, Schedule: ScheduleLoop,
		Replies: replies(Replies{}),
	},
}

// BuiltinLookup resolves compiled-in profiles by sensor name. Tests and
// board packages may replace it.
var BuiltinLookup = func(sensor string) (Profile, bool) {
	p, ok := builtin[sensor]
	return p, ok
}

// Sensors lists the sensor names with a built-in profile.
func Sensors() []string {
	return []string{
		SensorTLV493D, SensorLIS3DH, SensorLTR390, SensorRainGauge, SensorSHTC3, SensorAHT20, SensorSTTS751,
		SensorSHT40, SensorVEML7700, SensorVL53L0X, SensorHall, SensorIR, SensorWind,
	}
}

// Builtin returns the compiled-in profile for sensor.
func Builtin(sensor string) (Profile, error) {
	p, ok := BuiltinLookup(sensor)
	if !ok {
		return Profile{}, &errcode.E{C: errcode.NotFound, Op: "config.profile", Msg: "no profile for sensor " + sensor}
	}
	return p, nil
}

// Parse decodes a YAML profile. Fields the document leaves out are taken
// from the built-in profile of the named sensor.
func Parse(b []byte) (Profile, error) {
	var head struct {
		Sensor string `yaml:"sensor"`
	}
	if err := yaml.Unmarshal(b, &head); err != nil {
		return Profile{}, errcode.Wrap(errcode.InvalidParams, "config.profile", err)
	}
	p, err := Builtin(head.Sensor)
	if err != nil {
		return Profile{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, errcode.Wrap(errcode.InvalidParams, "config.profile", err)
	}
	return p, p.Validate()
}

// LoadFile reads and parses a YAML profile file.
func LoadFile(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errcode.Wrap(errcode.ConfigIO, "config.profile", err)
	}
	return Parse(b)
}

// Validate checks the fields the agent relies on.
func (p Profile) Validate() error {
	bad := func(format string, args ...any) error {
		return &errcode.E{C: errcode.InvalidParams, Op: "config.profile", Msg: fmt.Sprintf(format, args...)}
	}
	if _, ok := BuiltinLookup(p.Sensor); !ok {
		return bad("unknown sensor %q", p.Sensor)
	}
	switch p.Schedule {
	case ScheduleLoop, ScheduleWorkers, ScheduleTimer:
	default:
		return bad("unknown schedule %q", p.Schedule)
	}
	if p.DefaultIntervalS <= 0 || int64(p.DefaultIntervalS) > MaxIntervalS {
		return bad("default_interval_s must be in 1..%d, got %d", MaxIntervalS, p.DefaultIntervalS)
	}
	if p.CommandPollMS < 0 {
		return bad("command_poll_ms must be >= 0, got %d", p.CommandPollMS)
	}
	if p.UARTCmd == "" {
		return bad("uart_cmd is required")
	}
	switch {
	case analogSensors[p.Sensor]:
		if p.ADC == "" {
			return bad("adc is required for %s", p.Sensor)
		}
	case serialSensors[p.Sensor]:
		if p.UARTSensor == "" {
			return bad("uart_sensor is required for %s", p.Sensor)
		}
		if p.UARTSensor == p.UARTCmd {
			return bad("uart_sensor and uart_cmd must differ, both %q", p.UARTCmd)
		}
	case p.I2C == "":
		return bad("i2c is required for %s", p.Sensor)
	}
	return nil
}

// OutPort returns the reply port, falling back to the command port.
func (p Profile) OutPort() string {
	if p.UARTOut != "" {
		return p.UARTOut
	}
	return p.UARTCmd
}

// Analog reports whether the sensor reads an ADC channel.
func (p Profile) Analog() bool { return analogSensors[p.Sensor] }

// Serial reports whether the sensor reports over its own UART.
func (p Profile) Serial() bool { return serialSensors[p.Sensor] }
