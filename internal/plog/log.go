// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package plog is a small leveled, structured logger used throughout the
// photomesh daemon. It follows the go-probeum convention of key/value pairs
// rather than pre-formatted strings, so log lines stay greppable.
package plog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is the severity of a log record.
type Lvl int

const (
	LvlError Lvl = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN "
	case LvlInfo:
		return "INFO "
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

// Logger emits structured, leveled log records carrying a fixed context.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// New returns a child logger with ctx appended to every record.
	New(ctx ...interface{}) Logger
}

type logger struct {
	ctx []interface{}
}

var (
	root       = &logger{}
	mu         sync.Mutex
	out        io.Writer = colorable.NewColorableStdout()
	useColor             = isatty.IsTerminal(os.Stdout.Fd())
	minLevel             = LvlInfo
)

// Root returns the root logger; New(...) on it creates scoped children.
func Root() Logger { return root }

// SetLevel adjusts the minimum level emitted process-wide.
func SetLevel(l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects where records are written and turns off color.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	useColor = false
}

func (l *logger) New(ctx ...interface{}) Logger {
	nctx := make([]interface{}, 0, len(l.ctx)+len(ctx))
	nctx = append(nctx, l.ctx...)
	nctx = append(nctx, ctx...)
	return &logger{ctx: nctx}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > minLevel {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	if useColor {
		c := levelColor[lvl]
		fmt.Fprintf(&b, "%s %s %s", ts, c.Sprint(lvl.String()), msg)
	} else {
		fmt.Fprintf(&b, "%s %s %s", ts, lvl.String(), msg)
	}
	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		b.WriteByte(' ')
		fmt.Fprintf(&b, "%v=%s", all[i], formatValue(all[i+1]))
	}
	if lvl == LvlError {
		if call := stack.Caller(2); call != nil {
			fmt.Fprintf(&b, " caller=%+v", call)
		}
	}
	b.WriteByte('\n')
	io.WriteString(out, b.String())
}

// formatValue renders complex values (structs, slices, maps) the way
// go-probeum's logger does: simple scalars print plainly, everything else
// is rendered with go-spew so nested state is readable in one line.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " \t\n") {
			return fmt.Sprintf("%q", t)
		}
		return t
	case error:
		return fmt.Sprintf("%q", t.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", t.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool, float32, float64:
		return fmt.Sprintf("%v", t)
	default:
		return spew.Sprintf("%+v", t)
	}
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }

// New creates a logger from the root with the given context, the usual
// entry point for components ("log := plog.New(\"component\", \"engine\")").
func New(ctx ...interface{}) Logger {
	return root.New(ctx...)
}
