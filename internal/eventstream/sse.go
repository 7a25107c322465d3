// ABOUTME: Server-Sent Events frame parser for conversation event streams
// ABOUTME: Handles event, data, id, retry fields and comment lines per the SSE format

package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxLineSize bounds a single SSE line. Focus payloads are tiny; history
// replays can carry larger JSON documents.
const maxLineSize = 1 << 20

// defaultEventName is the SSE event type used when a frame has no event field.
const defaultEventName = "message"

// frame is one dispatched SSE block.
type frame struct {
	event Event
	// hasID distinguishes "id:" with an empty value (which resets the
	// last event id) from no id field at all.
	hasID bool
	retry time.Duration
}

// readFrames scans SSE frames from r and calls fn for each complete frame.
// Frames with no data lines are not dispatched, but a bare retry field is.
// Returns nil on EOF, ctx.Err() when cancelled, or the first error from fn.
func readFrames(ctx context.Context, r io.Reader, fn func(frame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		cur       frame
		dataLines []string
		hasData   bool
	)

	reset := func() {
		cur = frame{}
		dataLines = dataLines[:0]
		hasData = false
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()

		// Empty line signals end of frame
		if line == "" {
			if hasData || cur.retry > 0 {
				if hasData {
					cur.event.Data = strings.Join(dataLines, "\n")
					if cur.event.Name == "" {
						cur.event.Name = defaultEventName
					}
				}
				if err := fn(cur); err != nil {
					return err
				}
			}
			reset()
			continue
		}

		// Comment (keepalive)
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			cur.event.Name = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "id":
			// Ids containing NUL are ignored by the SSE format
			if !strings.ContainsRune(value, 0) {
				cur.event.ID = value
				cur.hasID = true
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				cur.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading SSE stream: %w", err)
	}
	return nil
}

// fieldBreaks strips line breaks from single-line fields.
var fieldBreaks = strings.NewReplacer("\r\n", "", "\r", "", "\n", "")

// dataBreaks normalizes every SSE line ending in data to "\n".
var dataBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// FormatFrame renders an SSE frame. Multi-line data is split into one data
// line per input line. Line breaks are removed from id and name so a field
// can never start another one. Empty id and name are omitted.
func FormatFrame(id, name, data string) []byte {
	id = fieldBreaks.Replace(id)
	name = fieldBreaks.Replace(name)
	data = dataBreaks.Replace(data)

	var buf bytes.Buffer
	if id != "" {
		fmt.Fprintf(&buf, "id: %s\n", id)
	}
	if name != "" && name != defaultEventName {
		fmt.Fprintf(&buf, "event: %s\n", name)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
