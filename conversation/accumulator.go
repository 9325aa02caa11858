package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/bosley/parley/phase"
)

// Exchange is one finished user/assistant turn. It is never modified after
// it is produced.
type Exchange struct {
	Seq       int         `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	User      string      `json:"user"`
	Assistant string      `json:"assistant"`
	Phase     phase.Phase `json:"phase,omitempty"`
}

// Accumulator collects user transcripts and streamed response text for the
// turn in progress. All access goes through one mutex so deltas and
// finalization are linearized.
type Accumulator struct {
	mu            sync.Mutex
	user          strings.Builder
	response      strings.Builder
	inProgress    bool
	responseStart time.Time
	lastSpeech    time.Time
	count         int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AddUserText appends a completed user transcript. Blank text is ignored.
// It reports whether anything was added.
func (a *Accumulator) AddUserText(text string, now time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user.Len() > 0 {
		a.user.WriteByte(' ')
	}
	a.user.WriteString(text)
	a.lastSpeech = now
	return true
}

// BeginResponse marks a response as in progress.
func (a *Accumulator) BeginResponse(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inProgress = true
	a.responseStart = now
}

// AppendResponse appends one streamed text delta.
func (a *Accumulator) AppendResponse(delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.response.WriteString(delta)
}

// InProgress reports whether a response has begun and not been finalized.
func (a *Accumulator) InProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inProgress
}

// LastSpeech returns when user text was last added.
func (a *Accumulator) LastSpeech() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSpeech
}

// Finalize ends the current turn. When both user and response text are
// non-blank it returns the exchange with ok set. The buffers are cleared
// either way. elapsed is the time since BeginResponse, or zero if no
// response was started.
func (a *Accumulator) Finalize(now time.Time, p phase.Phase) (ex Exchange, elapsed time.Duration, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inProgress && !a.responseStart.IsZero() {
		elapsed = now.Sub(a.responseStart)
	}

	user := strings.TrimSpace(a.user.String())
	response := strings.TrimSpace(a.response.String())
	a.user.Reset()
	a.response.Reset()
	a.inProgress = false
	a.responseStart = time.Time{}

	if user == "" || response == "" {
		return Exchange{}, elapsed, false
	}

	a.count++
	return Exchange{
		Seq:       a.count,
		Timestamp: now,
		User:      user,
		Assistant: response,
		Phase:     p,
	}, elapsed, true
}

// Pending returns copies of the buffered user and response text.
func (a *Accumulator) Pending() (user, response string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.response.String()
}
