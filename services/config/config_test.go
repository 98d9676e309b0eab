package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sensoragent-go/errcode"
)

func TestFileStore_LoadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	s := NewFileStore(path)

	r := s.Load(1)
	require.Equal(t, LoadResult{Value: 1, Source: SourceAbsent}, r)

	cases := []struct {
		content string
		value   int
		source  Source
	}{
		{"", 1, SourceEmpty},
		{"  \n", 1, SourceEmpty},
		{"7", 7, SourceStored},
		{" 12\r\n", 12, SourceStored},
		{"abc", 1, SourceCorrupt},
		{"0", 1, SourceCorrupt},
		{"-3", 1, SourceCorrupt},
		{"2.5", 1, SourceCorrupt},
		{"9223372037", 1, SourceCorrupt},
		{"20000000000", 1, SourceCorrupt},
		{"99999999999999999999", 1, SourceCorrupt},
	}
	for _, c := range cases {
		require.NoError(t, os.WriteFile(path, []byte(c.content), 0o644))
		r := s.Load(1)
		require.Equal(t, c.value, r.Value, "content %q", c.content)
		require.Equal(t, c.source, r.Source, "content %q", c.content)
		if c.source == SourceCorrupt {
			require.True(t, errors.Is(r.Err, errcode.ConfigIO))
		}
	}
}

func TestFileStore_IOErrorDefaults(t *testing.T) {
	dir := t.TempDir()
	// A directory at the path makes ReadFile fail with something other than
	// not-exist.
	s := NewFileStore(dir)
	r := s.Load(3)
	require.Equal(t, 3, r.Value)
	require.Equal(t, SourceIO, r.Source)
	require.True(t, r.Defaulted())
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interval.txt")
	s := NewFileStore(path)

	require.NoError(t, s.Save(1234))
	require.NoError(t, s.Save(5))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "5", string(b))
	require.Equal(t, LoadResult{Value: 5, Source: SourceStored}, s.Load(1))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file left behind")
}

func TestFileStore_SaveError(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing", "config.txt"))
	err := s.Save(2)
	require.Error(t, err)
	require.Equal(t, errcode.ConfigIO, errcode.Of(err))
}

func TestMemStore(t *testing.T) {
	m := NewMemStore()
	require.Equal(t, SourceAbsent, m.Load(1).Source)

	require.NoError(t, m.Save(9))
	require.Equal(t, LoadResult{Value: 9, Source: SourceStored}, m.Load(1))

	m.SaveErr = errors.New("flash full")
	require.Error(t, m.Save(4))
	require.Equal(t, 9, m.Load(1).Value)
	require.Equal(t, 2, m.Saves)

	require.Equal(t, SourceCorrupt, NewMemStore("x").Load(1).Source)
}

func TestMemStore_OutOfRangeIsCorrupt(t *testing.T) {
	r := NewMemStore("20000000000").Load(2)
	require.Equal(t, 2, r.Value)
	require.Equal(t, SourceCorrupt, r.Source)
	require.Equal(t, errcode.ConfigIO, errcode.Of(r.Err))

	r = NewMemStore(strconv.FormatInt(MaxIntervalS, 10)).Load(2)
	require.Equal(t, SourceStored, r.Source)
	require.Equal(t, MaxIntervalS, int64(r.Value))
	require.True(t, time.Duration(r.Value)*time.Second > 0)
}

func TestProfile_Builtins(t *testing.T) {
	for _, name := range Sensors() {
		p, err := Builtin(name)
		require.NoError(t, err, name)
		require.NoError(t, p.Validate(), name)
		require.Equal(t, name, p.Sensor)
	}
	_, err := Builtin("bme680")
	require.Equal(t, errcode.NotFound, errcode.Of(err))
}

func TestProfile_ParseInheritsBuiltin(t *testing.T) {
	p, err := Parse([]byte(`
sensor: ltr390
uart_cmd: /dev/ttyACM0
uart_out: /dev/ttyACM0
i2c: "1"
config_path: /tmp/uv.txt
`))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", p.UARTCmd)
	require.Equal(t, "1", p.I2C)
	require.Equal(t, ScheduleTimer, p.Schedule)
	require.True(t, p.ReportUnknown)
	require.Equal(t, 100, p.CommandPollMS)
	require.Equal(t, 1, p.DefaultIntervalS)
}

func TestProfile_ParseRejects(t *testing.T) {
	bad := []string{
		"sensor: nope\n",
		"sensor: tlv493d\nschedule: cron\n",
		"sensor: tlv493d\ndefault_interval_s: 0\n",
		"sensor: tlv493d\ndefault_interval_s: 20000000000\n",
		"sensor: hall\nadc: \"\"\n",
		"sensor: wind\nuart_sensor: \"\"\n",
		"sensor: wind\nuart_sensor: uart0\n",
		"sensor: sht40\ni2c: \"\"\n",
		"sensor: tlv493d\nbogus_field: 1\n",
		"sensor: raingauge\nadc: \"\"\n",
		"sensor: [\n",
	}
	for _, doc := range bad {
		_, err := Parse([]byte(doc))
		require.Error(t, err, doc)
	}
}

func TestProfile_ValidateUsesLookup(t *testing.T) {
	orig := BuiltinLookup
	t.Cleanup(func() { BuiltinLookup = orig })

	custom := Profile{
		Name: "board-tlv", Sensor: "tlv493d-b", I2C: "i2c1", UARTCmd: "uart0",
		DefaultIntervalS: 3, Schedule: ScheduleLoop,
	}
	require.Error(t, custom.Validate())

	BuiltinLookup = func(sensor string) (Profile, bool) {
		if sensor == custom.Sensor {
			return custom, true
		}
		return orig(sensor)
	}
	require.NoError(t, custom.Validate())
	p, err := Parse([]byte("sensor: tlv493d-b\ndefault_interval_s: 4\n"))
	require.NoError(t, err)
	require.Equal(t, 4, p.DefaultIntervalS)
	require.Equal(t, "i2c1", p.I2C)

	BuiltinLookup = func(string) (Profile, bool) { return Profile{}, false }
	tlv, _ := orig(SensorTLV493D)
	require.Equal(t, errcode.InvalidParams, errcode.Of(tlv.Validate()))
}

func TestProfile_Replies(t *testing.T) {
	for _, name := range Sensors() {
		p, _ := Builtin(name)
		require.NotEmpty(t, p.Replies.Banner, name)
		require.NotEmpty(t, p.Replies.Updated, name)
		require.NotEmpty(t, p.Replies.InvalidNumber, name)
	}

	lis, _ := Builtin(SensorLIS3DH)
	require.Equal(t, "Interval updated: %d sec", lis.Replies.Updated)
	require.Equal(t, "Error reading axes: %v", lis.Replies.ReadFailed)

	uv, _ := Builtin(SensorLTR390)
	require.Equal(t, "Interval set to %d seconds", uv.Replies.Updated)
	require.Equal(t, "Restarting device...", uv.Replies.Restarting)
	require.Equal(t, DefaultReplies.Unknown, uv.Replies.Unknown)

	stts, _ := Builtin(SensorSTTS751)
	require.Equal(t, "Interval set to %ds", stts.Replies.Updated)
	require.Equal(t, "Unknown command: %s", stts.Replies.Unknown)

	tlv, _ := Builtin(SensorTLV493D)
	require.Equal(t, DefaultReplies, tlv.Replies)

	p, err := Parse([]byte("sensor: lis3dh\nreplies:\n  updated: \"ok %d\"\n  read_failed: \"\"\n"))
	require.NoError(t, err)
	require.Equal(t, "ok %d", p.Replies.Updated)
	require.Empty(t, p.Replies.ReadFailed)
	require.Equal(t, lis.Replies.Banner, p.Replies.Banner)
}

func TestProfile_SensorKinds(t *testing.T) {
	for name, want := range map[string][2]bool{
		SensorRainGauge: {true, false},
		SensorHall:      {true, false},
		SensorIR:        {true, false},
		SensorWind:      {false, true},
		SensorSHT40:     {false, false},
	} {
		p, _ := Builtin(name)
		require.Equal(t, want[0], p.Analog(), name)
		require.Equal(t, want[1], p.Serial(), name)
	}
}

func TestProfile_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensor: raingauge\nadc: adc2\n"), 0o644))
	p, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "adc2", p.ADC)
	require.Equal(t, ScheduleWorkers, p.Schedule)
	require.Equal(t, "uart0", p.OutPort())

	_, err = LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.Equal(t, errcode.ConfigIO, errcode.Of(err))
}
