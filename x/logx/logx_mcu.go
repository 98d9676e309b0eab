//go:build rp2040 || rp2350

package logx

import "fmt"

// Verbosity gates V(); set from the board bootstrap.
var Verbosity = 0

func Infof(format string, args ...any)  { println("Info:", fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { println("Warn:", fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { println("Error:", fmt.Sprintf(format, args...)) }

func V(level int) bool { return level <= Verbosity }

func Flush() {}
