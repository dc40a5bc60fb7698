// Package debug builds the zerolog loggers used by the CLI and the language
// server.
package debug

import (
	"fmt"
	"io"
	"path"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const TimeFormat = "2006-01-02T15:04:05.0000Z"

// callerSkip reads zerolog's unexported skipFrame so CallerSkipFrame works
// with the caller hook.
func callerSkip(e *zerolog.Event) int {
	field := reflect.ValueOf(e).Elem().FieldByName("skipFrame")
	if field.IsValid() {
		return int(field.Int())
	}
	return 0
}

type TimeHook struct {
	Format string
}

func (t TimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	f := t.Format
	if f == "" {
		f = TimeFormat
	}
	e.Str("time", time.Now().UTC().Format(f))
}

type CallerHook struct {
	WithColor bool
}

func (c CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(callerSkip(e) + 3)
	if !ok {
		return
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}
	pkg, _ := SplitFuncName(fn.Name())
	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

// SplitFuncName splits a runtime function name such as
// github.com/a/b/pkg.(*T).Method into its package and function parts.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	dot := strings.IndexByte(name[lastSlash:], '.')
	if dot < 0 {
		return name, ""
	}
	dot += lastSlash
	return name[:dot], name[dot+1:]
}

func FormatCaller(pkg, file string, line int, colorize bool) string {
	base := path.Base(file)
	if !colorize {
		return fmt.Sprintf("%s:%s:%d", pkg, base, line)
	}
	sep := color.New(color.Faint).Sprint(":")
	return pkg + sep + color.New(color.Bold).Sprint(base) + sep + color.New(color.FgHiRed, color.Bold).Sprint(line)
}

// NewLogger returns a logger writing to w. Pretty output is colored console
// text for terminals; otherwise each line is a JSON object.
func NewLogger(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(w).
		Level(level).
		Hook(TimeHook{}).
		Hook(CallerHook{WithColor: pretty})
}

// ParseLevel is zerolog.ParseLevel with info as the fallback.
func ParseLevel(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return l
}
