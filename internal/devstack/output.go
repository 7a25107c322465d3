// ABOUTME: Line-prefixed, colored output writers for supervised child processes
// ABOUTME: Many processes share one destination; each line is written atomically

package devstack

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var namedColors = map[string]color.Attribute{
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

var palette = []color.Attribute{
	color.FgCyan,
	color.FgMagenta,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgRed,
}

// ColorFor returns the named color, or a palette color picked by index when
// name is empty or unknown.
func ColorFor(name string, index int) *color.Color {
	if attr, ok := namedColors[strings.ToLower(name)]; ok {
		return color.New(attr, color.Bold)
	}
	return color.New(palette[index%len(palette)], color.Bold)
}

// Output serializes writes from many PrefixWriters to one destination.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutput wraps w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

func (o *Output) writeLine(prefix string, line []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = io.WriteString(o.w, prefix)
	_, _ = o.w.Write(line)
	_, _ = io.WriteString(o.w, "\n")
}

// PrefixWriter buffers partial lines and writes each complete line to its
// Output behind a colored name.
type PrefixWriter struct {
	out    *Output
	prefix string

	mu  sync.Mutex
	buf []byte
}

// Prefixed returns a writer labelling lines with name padded to width.
func (o *Output) Prefixed(name string, width int, c *color.Color) *PrefixWriter {
	label := fmt.Sprintf("%-*s |", width, name)
	return &PrefixWriter{out: o, prefix: c.Sprint(label) + " "}
}

// Write implements io.Writer.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.out.writeLine(w.prefix, bytes.TrimSuffix(w.buf[:i], []byte("\r")))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush writes any buffered partial line.
func (w *PrefixWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.out.writeLine(w.prefix, w.buf)
		w.buf = nil
	}
}
