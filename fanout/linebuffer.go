package fanout

import "bytes"

// lineBuffer accumulates one output channel's bytes and emits exactly
// one line (terminator included) per newline found, independent of how
// the bytes were chunked on arrival. Flush emits any unterminated
// remainder once the channel closes.
type lineBuffer struct {
	emit func([]byte)
	buf  bytes.Buffer
}

func newLineBuffer(emit func([]byte)) *lineBuffer {
	return &lineBuffer{emit: emit}
}

func (l *lineBuffer) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := make([]byte, idx+1)
		copy(line, l.buf.Bytes()[:idx+1])
		l.buf.Next(idx + 1)
		l.emit(line)
	}
}

func (l *lineBuffer) Flush() {
	if l.buf.Len() == 0 {
		return
	}
	line := append([]byte(nil), l.buf.Bytes()...)
	l.buf.Reset()
	l.emit(line)
}
