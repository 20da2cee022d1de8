package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcnkl/enops/bootstrap"
)

func feedAll(f *Framer, data string) []Transition {
	var transitions []Transition
	for i := 0; i < len(data); i++ {
		if tr := f.Feed(data[i]); tr != None {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

func TestUploadSentinelAfterNonSpace(t *testing.T) {
	f := NewFramer()
	got := feedAll(f, "$ "+bootstrap.UploadSentinel)
	// Preceded by a space: the prompt's trailing space blocks the match.
	assert.Empty(t, got)

	f = NewFramer()
	got = feedAll(f, "x"+bootstrap.UploadSentinel)
	require.Equal(t, []Transition{StartUpload}, got)
	assert.True(t, f.Quiet())
}

func TestSentinelAtStreamStart(t *testing.T) {
	f := NewFramer()
	got := feedAll(f, bootstrap.UploadSentinel)
	assert.Equal(t, []Transition{StartUpload}, got)
}

func TestSentinelPrecededByNewline(t *testing.T) {
	f := NewFramer()
	got := feedAll(f, "output\n"+bootstrap.UploadSentinel)
	assert.Equal(t, []Transition{StartUpload}, got)
}

func TestSplitDelivery(t *testing.T) {
	// Streaming correctness: one byte at a time is the worst case and
	// exactly what feedAll does.
	f := NewFramer()
	got := feedAll(f, "noise"+bootstrap.UploadSentinel+"garbage"+bootstrap.ExecSentinel)
	assert.Equal(t, []Transition{StartUpload, StartExec}, got)
}

func TestQuietBetweenSentinels(t *testing.T) {
	f := NewFramer()

	feedAll(f, "x"+bootstrap.UploadSentinel)
	assert.True(t, f.Quiet())

	feedAll(f, "base64 spam")
	assert.True(t, f.Quiet())

	feedAll(f, bootstrap.ExecSentinel)
	assert.False(t, f.Quiet())
}

func TestSentinelsAreSingleUse(t *testing.T) {
	f := NewFramer()
	feedAll(f, bootstrap.UploadSentinel)
	feedAll(f, bootstrap.ExecSentinel)

	// Application output may legitimately contain the raw tokens now.
	got := feedAll(f, bootstrap.UploadSentinel+bootstrap.ExecSentinel)
	assert.Empty(t, got)
	assert.False(t, f.Quiet())
}

func TestUploadTriggersExactlyOnce(t *testing.T) {
	f := NewFramer()
	got := feedAll(f, bootstrap.UploadSentinel)
	require.Equal(t, []Transition{StartUpload}, got)

	// The buffer was cleared; the tail of the token alone must not
	// re-trigger.
	got = feedAll(f, bootstrap.UploadSentinel[1:])
	assert.Empty(t, got)
}

func TestNoSentinelIsPlainPassthrough(t *testing.T) {
	f := NewFramer()
	got := feedAll(f, "just an interactive session\r\nwith normal output\r\n")
	assert.Empty(t, got)
	assert.False(t, f.Quiet())
}

func TestBufferStaysBounded(t *testing.T) {
	f := NewFramer()
	for i := 0; i < 1<<16; i++ {
		f.Feed('a')
	}
	assert.LessOrEqual(t, len(f.buf), f.max)

	// Still matches after arbitrary preceding traffic.
	got := feedAll(f, bootstrap.UploadSentinel)
	assert.Equal(t, []Transition{StartUpload}, got)
}
