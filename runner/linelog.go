package runner

import (
	"io"
	"strings"
)

// lineLog accumulates pty output and flushes completed lines to a sink.
// A lone carriage return resets the visible portion of the current
// logical line, so progress-bar style output collapses into whatever
// was last written instead of producing one log line per redraw; a
// CRLF pair terminates the line like a plain newline. Cursor movement
// beyond start-of-line is deliberately not emulated.
type lineLog struct {
	sink      io.Writer
	current   strings.Builder
	pendingCR bool
}

func newLineLog(sink io.Writer) *lineLog {
	return &lineLog{sink: sink}
}

func (l *lineLog) Write(p []byte) (int, error) {
	for i := 0; i < len(p); i++ {
		b := p[i]

		if l.pendingCR {
			l.pendingCR = false
			if b == '\n' {
				if err := l.flush(); err != nil {
					return i, err
				}
				continue
			}
			// Overwrite: the redrawn line replaces the old one.
			l.current.Reset()
		}

		switch b {
		case '\n':
			if err := l.flush(); err != nil {
				return i, err
			}
		case '\r':
			l.pendingCR = true
		default:
			l.current.WriteByte(b)
		}
	}
	return len(p), nil
}

func (l *lineLog) flush() error {
	line := l.current.String()
	l.current.Reset()
	if line == "" {
		return nil
	}
	_, err := l.sink.Write([]byte(line + "\n"))
	return err
}

// discard drops the partial line currently being accumulated.
func (l *lineLog) discard() {
	l.current.Reset()
	l.pendingCR = false
}

// Close flushes any trailing partial line. A trailing bare CR means the
// line was about to be overwritten; it is discarded.
func (l *lineLog) Close() error {
	if l.pendingCR {
		l.pendingCR = false
		l.current.Reset()
		return nil
	}
	if l.current.Len() == 0 {
		return nil
	}
	return l.flush()
}
