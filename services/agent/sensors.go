package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tinygo.org/x/drivers/sht4x"
	"tinygo.org/x/drivers/shtc3"

	"sensoragent-go/drivers/aht20"
	"sensoragent-go/drivers/lis3dh"
	"sensoragent-go/drivers/ltr390"
	"sensoragent-go/drivers/raingauge"
	"sensoragent-go/drivers/regbus"
	"sensoragent-go/drivers/stts751"
	"sensoragent-go/drivers/threshold"
	"sensoragent-go/drivers/tlv493d"
	"sensoragent-go/drivers/veml7700"
	"sensoragent-go/drivers/vl53l0x"
	"sensoragent-go/drivers/wind"
	"sensoragent-go/errcode"
	"sensoragent-go/services/config"
	"sensoragent-go/services/hal/halcore"
	"sensoragent-go/services/hal/uartio"
	"sensoragent-go/x/mathx"
)

// Sensor is one agent's hardware. Init binds the device and may be repeated
// on restart. Read returns a nil Reading and nil error when there is nothing
// to report (event sensors between events).
type Sensor interface {
	Name() string
	Init() error
	Read() (Reading, error)
}

// Optional sensor behaviours.
type (
	// eventSensor is polled at PollInterval until a reading is produced;
	// after a reading the agent waits the configured interval.
	eventSensor interface{ PollInterval() time.Duration }
	// failureReporter renders a read error as a telemetry line.
	failureReporter interface{ FailureLine(err error) string }
	// restartHook runs on the restart command and returns extra reply lines.
	restartHook interface{ OnRestart() []string }
)

// NewSensor builds the sensor named by the profile on platform p. report
// receives bring-up diagnostics for the output port.
func NewSensor(prof config.Profile, p halcore.Platform, report func(string)) (Sensor, error) {
	if report == nil {
		report = func(string) {}
	}
	switch {
	case prof.Analog():
		if p.ADC == nil {
			return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "no ADC on platform"}
		}
		adc, ok := p.ADC.ByID(prof.ADC)
		if !ok {
			return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "unknown adc " + prof.ADC}
		}
		return newAnalog(prof, adc, report)
	case prof.Serial():
		if p.UART == nil {
			return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "no UART on platform"}
		}
		port, ok := p.UART.ByID(prof.UARTSensor)
		if !ok {
			return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "unknown uart " + prof.UARTSensor}
		}
		return NewWind(port), nil
	}

	if p.I2C == nil {
		return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "no I2C on platform"}
	}
	bus, ok := p.I2C.ByID(prof.I2C)
	if !ok {
		return nil, &errcode.E{C: errcode.NotFound, Op: "agent.sensor", Msg: "unknown i2c " + prof.I2C}
	}
	regs := regbus.New(bus)
	switch prof.Sensor {
	case config.SensorTLV493D:
		return NewTLV493D(regbus.New(bus, regbus.WithReadStrategies(tlv493d.ReadStrategies()...)), report), nil
	case config.SensorLIS3DH:
		return NewLIS3DH(regs, report), nil
	case config.SensorLTR390:
		return NewLTR390(regs, ltr390.Config{}, report), nil
	case config.SensorSHTC3:
		return NewSHTC3(bus), nil
	case config.SensorAHT20:
		return NewAHT20(bus), nil
	case config.SensorSTTS751:
		return NewSTTS751(regs, report), nil
	case config.SensorSHT40:
		return NewSHT40(bus), nil
	case config.SensorVEML7700:
		return NewVEML7700(regs, report), nil
	case config.SensorVL53L0X:
		return NewVL53L0X(regs, report), nil
	}
	return nil, &errcode.E{C: errcode.InvalidParams, Op: "agent.sensor", Msg: "unknown sensor " + prof.Sensor}
}

func newAnalog(prof config.Profile, adc halcore.ADC, report func(string)) (Sensor, error) {
	switch prof.Sensor {
	case config.SensorRainGauge:
		return NewRainGauge(adc, report), nil
	case config.SensorHall:
		return NewHall(adc, prof.Threshold), nil
	case config.SensorIR:
		return NewIR(adc, prof.Threshold), nil
	}
	return nil, &errcode.E{C: errcode.InvalidParams, Op: "agent.sensor", Msg: "unknown analog sensor " + prof.Sensor}
}

// pyFloat prints the shortest representation that round-trips, always with
// a fractional part ("1.0", "-0.098").
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// ---- TLV493D ----

type MagneticReading tlv493d.Sample

func (r MagneticReading) Telemetry() string {
	return fmt.Sprintf("TLV493D: X=%s mT, Y=%s mT, Z=%s mT", pyFloat(r.X), pyFloat(r.Y), pyFloat(r.Z))
}

type tlvSensor struct {
	dev    *tlv493d.Device
	report func(string)
}

func NewTLV493D(regs regbus.Registers, report func(string)) Sensor {
	d := tlv493d.New(regs)
	d.Configure(tlv493d.Config{Report: report})
	return &tlvSensor{dev: d, report: report}
}

func (s *tlvSensor) Name() string { return "TLV493D" }

// Init enables continuous mode. A failure is reported, not returned: the
// sensor may already be running.
func (s *tlvSensor) Init() error {
	if err := s.dev.EnableContinuous(); err != nil {
		s.report(fmt.Sprintf("TLV493D: enable_cont failed: %v", err))
	}
	return nil
}

func (s *tlvSensor) Read() (Reading, error) {
	v, err := s.dev.Read()
	if err != nil {
		return nil, err
	}
	return MagneticReading(v), nil
}

// ---- LIS3DH ----

type AccelReading lis3dh.Sample

func (r AccelReading) Telemetry() string {
	return fmt.Sprintf("LIS3DH: X=%.3f, Y=%.3f, Z=%.3f", r.X, r.Y, r.Z)
}

type lisSensor struct {
	dev    *lis3dh.Device
	report func(string)
}

func NewLIS3DH(regs regbus.Registers, report func(string)) Sensor {
	return &lisSensor{dev: lis3dh.New(regs), report: report}
}

func (s *lisSensor) Name() string { return "LIS3DH" }

func (s *lisSensor) Init() error {
	if err := s.dev.Configure(); err != nil {
		return err
	}
	s.report(fmt.Sprintf("LIS3DH initialized at 0x%02X.", s.dev.Address))
	return nil
}

func (s *lisSensor) Read() (Reading, error) {
	v, err := s.dev.Read()
	if err != nil {
		return nil, err
	}
	return AccelReading(v), nil
}

// ---- LTR390 ----

type UVReading uint32

func (r UVReading) Telemetry() string { return "UV " + strconv.FormatUint(uint64(r), 10) }

type ltrSensor struct {
	dev    *ltr390.Device
	cfg    ltr390.Config
	report func(string)
}

func NewLTR390(regs regbus.Registers, cfg ltr390.Config, report func(string)) Sensor {
	return &ltrSensor{dev: ltr390.New(regs), cfg: cfg, report: report}
}

func (s *ltrSensor) Name() string { return "LTR390" }

// Init writes the measurement setup. Data that is not ready within the wait
// bound is reported but leaves the sensor usable.
func (s *ltrSensor) Init() error {
	err := s.dev.Configure(s.cfg)
	switch {
	case errors.Is(err, ltr390.ErrTimeout):
		s.report("LTR390 initialized (data not ready)")
	case err != nil:
		return err
	default:
		s.report("LTR390 initialized")
	}
	return nil
}

func (s *ltrSensor) Read() (Reading, error) {
	uv, err := s.dev.ReadUV()
	if err != nil {
		return nil, err
	}
	return UVReading(uv), nil
}

func (s *ltrSensor) FailureLine(err error) string {
	if errors.Is(err, ltr390.ErrNotReady) {
		return "uv not_ready"
	}
	return "LTR390: Read failed"
}

// ---- rain gauge ----

type RainReading uint32

func (r RainReading) Telemetry() string {
	return "Rain Tip Detected! Rainfall: " + strconv.FormatUint(uint64(r), 10)
}

type rainSensor struct {
	g      *raingauge.Gauge
	report func(string)
}

func NewRainGauge(adc halcore.ADC, report func(string)) Sensor {
	return &rainSensor{g: raingauge.New(adc), report: report}
}

func (s *rainSensor) Name() string { return "Rain Gauge" }

func (s *rainSensor) Init() error {
	s.report("Starting ADC Rain Tip Detection...")
	return nil
}

func (s *rainSensor) Read() (Reading, error) {
	tipped, total, err := s.g.Poll()
	if err != nil || !tipped {
		return nil, err
	}
	return RainReading(total), nil
}

func (s *rainSensor) PollInterval() time.Duration { return 100 * time.Millisecond }

func (s *rainSensor) FailureLine(err error) string { return "ADC Loop Error: " + err.Error() }

func (s *rainSensor) OnRestart() []string {
	s.g.Reset()
	return []string{"Device restarted. Rainfall counter reset to 0."}
}

// Count is the current tip total.
func (s *rainSensor) Count() uint32 { return s.g.Count() }

// ---- temperature / humidity ----

// ClimateReading holds °C and %RH from the sensor named by Label.
type ClimateReading struct {
	Label     string
	TempC, RH float64
}

func (r ClimateReading) Telemetry() string {
	return fmt.Sprintf("%s: Temperature=%.2f C, Humidity=%.2f %%", r.Label, r.TempC, r.RH)
}

type shtSensor struct{ dev shtc3.Device }

func NewSHTC3(bus halcore.I2C) Sensor { return &shtSensor{dev: shtc3.New(bus)} }

func (s *shtSensor) Name() string { return "SHTC3" }

// Init checks the device answers a wake-up, then puts it back to sleep.
func (s *shtSensor) Init() error {
	if err := s.dev.WakeUp(); err != nil {
		return err
	}
	return s.dev.Sleep()
}

func (s *shtSensor) Read() (Reading, error) {
	if err := s.dev.WakeUp(); err != nil {
		return nil, err
	}
	defer func() { _ = s.dev.Sleep() }()

	tmc, rhx100, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return nil, err
	}
	rhx100 = mathx.Clamp(rhx100, 0, 10000)
	return ClimateReading{Label: "SHTC3", TempC: float64(tmc) / 1000, RH: float64(rhx100) / 100}, nil
}

type ahtSensor struct{ dev *aht20.Device }

func NewAHT20(bus halcore.I2C) Sensor { return &ahtSensor{dev: aht20.New(bus)} }

func (s *ahtSensor) Name() string { return "AHT20" }

func (s *ahtSensor) Init() error { return s.dev.Configure(aht20.Config{}) }

func (s *ahtSensor) Read() (Reading, error) {
	v, err := s.dev.Read()
	if err != nil {
		return nil, err
	}
	return ClimateReading{Label: "AHT20", TempC: v.Celsius(), RH: mathx.Clamp(v.RelHumidity(), 0, 100)}, nil
}

// ---- STTS751 ----

type TemperatureReading float64

func (r TemperatureReading) Telemetry() string {
	return "STTS751: Temperature " + pyFloat(float64(r)) + " C"
}

type sttsSensor struct {
	dev    *stts751.Device
	report func(string)
}

func NewSTTS751(regs regbus.Registers, report func(string)) Sensor {
	return &sttsSensor{dev: stts751.New(regs), report: report}
}

func (s *sttsSensor) Name() string { return "STTS751" }

func (s *sttsSensor) Init() error {
	if err := s.dev.Configure(); err != nil {
		return err
	}
	s.report("STTS751 initialized")
	return nil
}

func (s *sttsSensor) Read() (Reading, error) {
	c, err := s.dev.Celsius()
	if err != nil {
		return nil, err
	}
	return TemperatureReading(c), nil
}

func (s *sttsSensor) FailureLine(err error) string { return "STTS751 read error: " + err.Error() }

// ---- SHT40 ----

// SHT40Reading is rounded to hundredths before it is printed.
type SHT40Reading struct{ TempC, RH float64 }

func (r SHT40Reading) Telemetry() string {
	return "SHT40:Temperature:" + pyFloat(r.TempC) + "°C, Humidity:" + pyFloat(r.RH) + "%"
}

type sht40Sensor struct{ dev sht4x.Device }

func NewSHT40(bus halcore.I2C) Sensor { return &sht40Sensor{dev: sht4x.New(bus)} }

func (s *sht40Sensor) Name() string { return "SHT40" }

// Init takes one measurement; the SHT4x has no identity register.
func (s *sht40Sensor) Init() error {
	_, _, err := s.dev.ReadTemperatureHumidity()
	return err
}

func (s *sht40Sensor) Read() (Reading, error) {
	tmc, rhm, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return nil, err
	}
	rhm = mathx.Clamp(rhm, 0, 100000)
	return SHT40Reading{
		TempC: mathx.Round(float64(tmc)/1000, 2),
		RH:    mathx.Round(float64(rhm)/1000, 2),
	}, nil
}

// ---- VEML7700 ----

type LuxReading float64

func (r LuxReading) Telemetry() string { return fmt.Sprintf("VEML7700: Lux=%.2f", float64(r)) }

type vemlSensor struct {
	dev    *veml7700.Device
	report func(string)
}

func NewVEML7700(regs regbus.Registers, report func(string)) Sensor {
	return &vemlSensor{dev: veml7700.New(regs), report: report}
}

func (s *vemlSensor) Name() string { return "VEML7700" }

func (s *vemlSensor) Init() error {
	if err := s.dev.Configure(veml7700.Config{}); err != nil {
		s.report("VEML7700 init error: " + err.Error())
		return err
	}
	s.report("VEML7700 Initialized.")
	return nil
}

func (s *vemlSensor) Read() (Reading, error) {
	lux, err := s.dev.Lux()
	if err != nil {
		return nil, err
	}
	return LuxReading(lux), nil
}

// ---- VL53L0X ----

// DistanceReading is in centimetres.
type DistanceReading float64

func (r DistanceReading) Telemetry() string {
	return fmt.Sprintf("VL53L0X: Distance = %.2f cm", float64(r))
}

type tofSensor struct {
	dev    *vl53l0x.Device
	report func(string)
}

func NewVL53L0X(regs regbus.Registers, report func(string)) Sensor {
	return &tofSensor{dev: vl53l0x.New(regs), report: report}
}

func (s *tofSensor) Name() string { return "VL53L0X" }

func (s *tofSensor) Init() error {
	if err := s.dev.Configure(vl53l0x.Config{}); err != nil {
		return err
	}
	s.report(fmt.Sprintf("VL53L0X initialized at 0x%02X", s.dev.Address))
	return nil
}

func (s *tofSensor) Read() (Reading, error) {
	cm, err := s.dev.Centimetres()
	if err != nil {
		s.report("Error reading distance: " + err.Error())
		return nil, err
	}
	return DistanceReading(cm), nil
}

func (s *tofSensor) FailureLine(error) string { return "VL53L0X: Failed to read distance" }

// ---- Hall effect / infrared ----

// Comparator thresholds in mV.
const (
	HallThreshold = 2000
	IRThreshold   = 1500
)

// HallReading reports State=1 while a magnet pulls the output low.
type HallReading struct {
	State bool
	AO    uint16
}

func (r HallReading) Telemetry() string {
	return fmt.Sprintf("Hall Sensor: State=%d, AO=%d", b2i(r.State), r.AO)
}

// IRReading is 1 while the receiver sees infrared.
type IRReading bool

func (r IRReading) Telemetry() string { return fmt.Sprintf(" IR Sensor: Infrared = %d ", b2i(bool(r))) }

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

type switchSensor struct {
	name    string
	det     *threshold.Detector
	reading func(active bool, mv uint16) Reading
}

// NewHall reads a Hall-effect module's analogue output; level 0 uses
// HallThreshold.
func NewHall(adc halcore.ADC, level uint16) Sensor {
	if level == 0 {
		level = HallThreshold
	}
	return &switchSensor{
		name:    "Hall Sensor",
		det:     threshold.New(adc, level, true),
		reading: func(active bool, mv uint16) Reading { return HallReading{State: active, AO: mv} },
	}
}

// NewIR reads an infrared receiver module; level 0 uses IRThreshold.
func NewIR(adc halcore.ADC, level uint16) Sensor {
	if level == 0 {
		level = IRThreshold
	}
	return &switchSensor{
		name:    "IR Sensor",
		det:     threshold.New(adc, level, false),
		reading: func(active bool, _ uint16) Reading { return IRReading(active) },
	}
}

func (s *switchSensor) Name() string { return s.name }

func (s *switchSensor) Init() error { return nil }

func (s *switchSensor) Read() (Reading, error) {
	active, mv, err := s.det.Read()
	if err != nil {
		return nil, err
	}
	return s.reading(active, mv), nil
}

func (s *switchSensor) FailureLine(err error) string { return "Error: " + err.Error() }

// ---- wind ----

type WindReading wind.Sample

func (r WindReading) Telemetry() string {
	return fmt.Sprintf("Wind speed: %.2f, Wind direction: %.2f", r.Speed, r.Direction)
}

// windDrainChunks bounds how much of a chattering port one tick consumes.
const windDrainChunks = 16

// windSensor drains the sensor port on every tick and reports the latest
// complete pair. Nothing is sent until both values have been seen.
type windSensor struct {
	port halcore.UARTPort
	p    wind.Parser
	buf  [128]byte
}

func NewWind(port halcore.UARTPort) Sensor { return &windSensor{port: port} }

func (s *windSensor) Name() string { return "Wind Sensor" }

func (s *windSensor) Init() error { return nil }

func (s *windSensor) Read() (Reading, error) {
	for i := 0; i < windDrainChunks; i++ {
		chunk := uartio.Poll(s.port, s.buf[:])
		if chunk == nil {
			break
		}
		s.p.Feed(chunk)
	}
	v, ok := s.p.Latest()
	if !ok {
		return nil, nil
	}
	return WindReading(v), nil
}
