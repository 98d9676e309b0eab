package config

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sensoragent-go/errcode"
)

// Source says where a loaded interval came from.
type Source string

const (
	SourceStored  Source = "stored"
	SourceAbsent  Source = "default:absent"
	SourceEmpty   Source = "default:empty"
	SourceCorrupt Source = "default:corrupt"
	SourceIO      Source = "default:io"
)

// MaxIntervalS is the largest interval, in seconds, that fits both an int
// and a time.Duration.
const MaxIntervalS = min(math.MaxInt64/int64(time.Second), math.MaxInt)

// LoadResult always carries a usable Value. Err is set only for
// SourceCorrupt and SourceIO.
type LoadResult struct {
	Value  int
	Source Source
	Err    error
}

func (r LoadResult) Defaulted() bool { return r.Source != SourceStored }

// Store persists the sampling interval in seconds.
type Store interface {
	Load(def int) LoadResult
	Save(v int) error
}

// FileStore keeps the interval as decimal ASCII in a single file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Load(def int) LoadResult {
	b, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return LoadResult{Value: def, Source: SourceAbsent}
	case err != nil:
		return LoadResult{Value: def, Source: SourceIO, Err: errcode.Wrap(errcode.ConfigIO, "config.load", err)}
	}
	return parseStored(string(b), def)
}

func parseStored(s string, def int) LoadResult {
	s = strings.TrimSpace(s)
	if s == "" {
		return LoadResult{Value: def, Source: SourceEmpty}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return LoadResult{Value: def, Source: SourceCorrupt, Err: errcode.Wrap(errcode.ConfigIO, "config.load", err)}
	}
	if v <= 0 {
		return LoadResult{Value: def, Source: SourceCorrupt,
			Err: &errcode.E{C: errcode.ConfigIO, Op: "config.load", Msg: "non-positive interval " + s}}
	}
	if v > MaxIntervalS {
		return LoadResult{Value: def, Source: SourceCorrupt,
			Err: &errcode.E{C: errcode.ConfigIO, Op: "config.load", Msg: "interval out of range " + s}}
	}
	return LoadResult{Value: int(v), Source: SourceStored}
}

// Save replaces the file contents. The write goes to a temporary file in the
// same directory which is then renamed over the target.
func (s *FileStore) Save(v int) error {
	dir := filepath.Dir(s.Path)
	f, err := os.CreateTemp(dir, ".interval-*")
	if err != nil {
		return errcode.Wrap(errcode.ConfigIO, "config.save", err)
	}
	tmp := f.Name()
	_, werr := f.WriteString(strconv.Itoa(v))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp)
		return errcode.Wrap(errcode.ConfigIO, "config.save", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return errcode.Wrap(errcode.ConfigIO, "config.save", err)
	}
	return nil
}

// MemStore holds the value in RAM. Used on boards without a filesystem and
// in tests.
type MemStore struct {
	mu      sync.Mutex
	raw     *string
	SaveErr error // returned by Save when set; the value is not stored
	Saves   int
}

// NewMemStore returns an empty store, or one holding raw when given.
func NewMemStore(raw ...string) *MemStore {
	m := &MemStore{}
	if len(raw) > 0 {
		m.raw = &raw[0]
	}
	return m
}

func (m *MemStore) Load(def int) LoadResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return LoadResult{Value: def, Source: SourceAbsent}
	}
	return parseStored(*m.raw, def)
}

func (m *MemStore) Save(v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return errcode.Wrap(errcode.ConfigIO, "config.save", m.SaveErr)
	}
	s := strconv.Itoa(v)
	m.raw = &s
	return nil
}
