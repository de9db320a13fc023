package media

import (
	"errors"
	"sync"
	"time"
)

// ErrNoActiveRecording signals a stop with no recording in progress.
var ErrNoActiveRecording = errors.New("media: no active recording")

// VoiceCapture is the result of a finished recording. Duration is the
// client-timed recording length in whole seconds, never negative.
type VoiceCapture struct {
	DurationSeconds int
}

// Recorder is the voice-recording control for one client instance. It is an
// explicit two-state toggle: the first Toggle starts the timer, the second
// stops it and yields the capture. Pressing record while already recording
// therefore stops the current recording instead of starting a second one,
// so a single instance can never hold two recordings at once.
type Recorder struct {
	mu        sync.Mutex
	now       func() time.Time
	startedAt time.Time
	active    bool
}

// NewRecorder creates an idle recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Toggle flips the recording state. It returns recording=true when a new
// recording just started, and (capture, false) when an active recording was
// stopped and timed.
func (r *Recorder) Toggle() (capture VoiceCapture, recording bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		r.active = true
		r.startedAt = r.now()
		return VoiceCapture{}, true
	}

	r.active = false
	return r.capture(), false
}

// Stop ends the active recording and returns its capture, or
// ErrNoActiveRecording when the recorder is idle.
func (r *Recorder) Stop() (VoiceCapture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return VoiceCapture{}, ErrNoActiveRecording
	}
	r.active = false
	return r.capture(), nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) capture() VoiceCapture {
	elapsed := r.now().Sub(r.startedAt)
	secs := int(elapsed / time.Second)
	if secs < 0 {
		secs = 0
	}
	return VoiceCapture{DurationSeconds: secs}
}
