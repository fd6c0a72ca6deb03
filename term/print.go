package term

import (
	"fmt"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/pterm/pterm"
)

type Level int

const (
	LevelDebug Level = iota
	LevelVerbose
	LevelInfo
	LevelWarn
	LevelError
)

var lvl = LevelInfo

func SetLevel(level Level) {
	lvl = level
}

func Debug(a ...interface{}) {
	if lvl > LevelDebug {
		return
	}
	pterm.FgLightCyan.Println(a...)
}

func Debugf(format string, a ...interface{}) {
	if lvl > LevelDebug {
		return
	}
	pterm.FgLightCyan.Printfln(format, a...)
}

func Verbose(a ...interface{}) {
	if lvl > LevelVerbose {
		return
	}
	pterm.FgDefault.Println(a...)
}

func Verbosef(format string, a ...interface{}) {
	if lvl > LevelVerbose {
		return
	}
	pterm.FgDefault.Printfln(format, a...)
}

func Info(a ...interface{}) {
	if lvl > LevelInfo {
		return
	}
	pterm.FgLightGreen.Println(a...)
}

func Infof(format string, a ...interface{}) {
	if lvl > LevelInfo {
		return
	}
	pterm.FgLightGreen.Printfln(format, a...)
}

func Warn(a ...interface{}) {
	if lvl > LevelWarn {
		return
	}
	pterm.FgYellow.Println(a...)
}

func Warnf(format string, a ...interface{}) {
	if lvl > LevelWarn {
		return
	}
	pterm.FgYellow.Printfln(format, a...)
}

func Error(a ...interface{}) {
	pterm.FgLightRed.Println(a...)
}

func Errorf(format string, a ...interface{}) {
	pterm.FgLightRed.Printfln(format, a...)
}

// Printf always prints, whatever the level
func Printf(format string, a ...interface{}) {
	pterm.FgDefault.Printfln(format, a...)
}

// Logger returns a lib.Logger printing at debug level
func Logger() lib.Logger {
	return debugLogger{}
}

type debugLogger struct{}

func (debugLogger) Print(a ...any) {
	Debug(fmt.Sprint(a...))
}

func (debugLogger) Println(a ...any) {
	Debug(a...)
}

func (debugLogger) Printf(format string, a ...any) {
	Debugf(format, a...)
}
