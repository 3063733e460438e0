package billing

import "time"

// PlaybackState mirrors the state reported by the video surface.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "PLAYING"
	PlaybackPaused  PlaybackState = "PAUSED"
	PlaybackEnded   PlaybackState = "ENDED"
)

// PlaybackEvent is one observation from the video surface: the playback
// state, the position inside the media and the wall-clock time the
// event happened at.
type PlaybackEvent struct {
	State           PlaybackState `json:"state"`
	PositionSeconds float64       `json:"position_seconds"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Meter converts a stream of play/pause events plus periodic client
// syncs into a single number: billable seconds.  Time accrues only
// while playback is in the PLAYING state; the accumulator is folded
// forward when a playing segment closes, which makes it robust to
// irregular polling.  A Meter is a plain state object with no locking
// of its own; the session manager serializes access per session.
type Meter struct {
	accumulated float64 // closed billable seconds
	playing     bool
	playStart   time.Time // wall clock when the open segment began

	lastPosition  float64
	lastEventAt   time.Time
	seekThreshold float64
	seeks         int
}

// NewMeter returns a meter that flags forward position jumps larger
// than seekThreshold seconds beyond normal playback progress.
func NewMeter(seekThreshold float64) *Meter {
	return &Meter{seekThreshold: seekThreshold}
}

// Apply feeds one playback event into the meter.  A transition into
// PLAYING opens a segment; a transition to PAUSED or ENDED closes it
// and folds the elapsed wall-clock time into the accumulator.
func (m *Meter) Apply(ev PlaybackEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Seek detection is informational only: billing follows wall-clock
	// time while playing, never media positions, so a skip can never
	// inflate or deflate the charge.
	if m.playing && !m.lastEventAt.IsZero() {
		elapsed := ev.Timestamp.Sub(m.lastEventAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		if ev.PositionSeconds > m.lastPosition+elapsed+m.seekThreshold {
			m.seeks++
		}
	}
	m.lastPosition = ev.PositionSeconds
	m.lastEventAt = ev.Timestamp

	switch ev.State {
	case PlaybackPlaying:
		if !m.playing {
			m.playing = true
			m.playStart = ev.Timestamp
		}
	case PlaybackPaused, PlaybackEnded:
		m.closeSegment(ev.Timestamp)
	}
}

// closeSegment folds the open playing segment into the accumulator.
func (m *Meter) closeSegment(now time.Time) {
	if !m.playing {
		return
	}
	seg := now.Sub(m.playStart).Seconds()
	if seg > 0 {
		m.accumulated += seg
	}
	m.playing = false
}

// Accumulated returns billable seconds including the open segment,
// without mutating the stored accumulator.  Safe to call repeatedly
// for live display.
func (m *Meter) Accumulated(now time.Time) float64 {
	total := m.accumulated
	if m.playing {
		if open := now.Sub(m.playStart).Seconds(); open > 0 {
			total += open
		}
	}
	return total
}

// Finish closes any open segment and returns the final accumulated
// seconds.  Used when a session ends.
func (m *Meter) Finish(now time.Time) float64 {
	m.closeSegment(now)
	return m.accumulated
}

// SeekCount reports how many suspicious forward jumps were observed.
func (m *Meter) SeekCount() int { return m.seeks }

// Playing reports whether a segment is currently open.
func (m *Meter) Playing() bool { return m.playing }
