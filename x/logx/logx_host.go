//go:build !rp2040 && !rp2350

// Package logx is the agent's diagnostic log. It is separate from the serial
// reply channel: nothing written here is seen by the command peer.
package logx

import (
	"fmt"

	"github.com/golang/glog"
)

func Infof(format string, args ...any) { glog.InfoDepth(1, fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any) { glog.WarningDepth(1, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) {
	glog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

// V reports whether verbose logging at level is enabled (-v flag).
func V(level int) bool { return bool(glog.V(glog.Level(level))) }

// Flush writes any buffered log entries.
func Flush() { glog.Flush() }
