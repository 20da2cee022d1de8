package runner

import "github.com/vcnkl/enops/bootstrap"

// Transition is the framer's verdict for one incoming byte.
type Transition int

const (
	// None: no phase change; forward the byte if not in quiet mode.
	None Transition = iota
	// StartUpload: the upload sentinel just completed. The caller
	// erases the current display line and begins writing the payload.
	StartUpload
	// StartExec: the exec sentinel just completed. Echo resumes and
	// sentinel matching is disabled for the rest of the session.
	StartExec
)

// Framer classifies a raw pty byte stream into protocol phases by
// scanning for the two bootstrap sentinels. It keeps only enough
// recent bytes to match the longer sentinel plus the one preceding
// character needed for the not-after-space rule.
type Framer struct {
	buf      []byte
	max      int
	quiet    bool
	matching bool
}

func NewFramer() *Framer {
	max := len(bootstrap.UploadSentinel)
	if len(bootstrap.ExecSentinel) > max {
		max = len(bootstrap.ExecSentinel)
	}
	return &Framer{max: max + 1, matching: true}
}

// Quiet reports whether incoming bytes are currently suppressed from
// the local display (true between the upload and exec sentinels).
func (f *Framer) Quiet() bool {
	return f.quiet
}

// Feed consumes one byte and reports any phase transition. Sentinels
// are single-use: after StartExec the framer never matches again and
// the stream is plain passthrough.
func (f *Framer) Feed(b byte) Transition {
	if !f.matching {
		return None
	}

	f.buf = append(f.buf, b)
	if len(f.buf) > f.max {
		f.buf = f.buf[len(f.buf)-f.max:]
	}

	if f.matches(bootstrap.UploadSentinel) {
		f.quiet = true
		f.buf = f.buf[:0]
		return StartUpload
	}
	if f.matches(bootstrap.ExecSentinel) {
		f.quiet = false
		f.matching = false
		f.buf = nil
		return StartExec
	}
	return None
}

// matches reports whether the buffer ends with token and the character
// immediately preceding it, when present, is not a plain space. The
// space rule distinguishes the script's deliberate emission from the
// same characters drifting past inside ordinary terminal content.
func (f *Framer) matches(token string) bool {
	n := len(f.buf)
	t := len(token)
	if n < t {
		return false
	}
	if string(f.buf[n-t:]) != token {
		return false
	}
	if n > t && f.buf[n-t-1] == ' ' {
		return false
	}
	return true
}
