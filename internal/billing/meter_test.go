package billing_test

import (
	"testing"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
)

var meterBase = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return meterBase.Add(time.Duration(sec * float64(time.Second)))
}

func TestMeterAccruesOnlyWhilePlaying(t *testing.T) {
	m := billing.NewMeter(5)

	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 0, Timestamp: at(0)})
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPaused, PositionSeconds: 30, Timestamp: at(30)})
	if got := m.Accumulated(at(30)); got != 30 {
		t.Fatalf("after play+pause: accumulated = %v, want 30", got)
	}

	// Paused wall-clock time must not accrue.
	if got := m.Accumulated(at(90)); got != 30 {
		t.Fatalf("while paused: accumulated = %v, want 30", got)
	}

	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 30, Timestamp: at(90)})
	if got := m.Accumulated(at(120)); got != 60 {
		t.Fatalf("open segment: accumulated = %v, want 60", got)
	}
	if got := m.Finish(at(120)); got != 60 {
		t.Fatalf("finish = %v, want 60", got)
	}
	if m.Playing() {
		t.Fatal("meter still playing after Finish")
	}
}

func TestMeterDuplicatePlayEventsKeepOneSegment(t *testing.T) {
	m := billing.NewMeter(5)
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 0, Timestamp: at(0)})
	// A second PLAYING event must not restart the open segment.
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 10, Timestamp: at(10)})
	if got := m.Accumulated(at(20)); got != 20 {
		t.Fatalf("accumulated = %v, want 20", got)
	}
}

func TestMeterPauseWithoutPlayIsNoop(t *testing.T) {
	m := billing.NewMeter(5)
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPaused, PositionSeconds: 12, Timestamp: at(12)})
	if got := m.Finish(at(30)); got != 0 {
		t.Fatalf("accumulated = %v, want 0", got)
	}
}

func TestMeterSeekDetection(t *testing.T) {
	tests := []struct {
		name   string
		events []billing.PlaybackEvent
		want   int
	}{
		{
			name: "forward jump past threshold",
			events: []billing.PlaybackEvent{
				{State: billing.PlaybackPlaying, PositionSeconds: 10, Timestamp: at(0)},
				{State: billing.PlaybackPlaying, PositionSeconds: 100, Timestamp: at(5)},
			},
			want: 1,
		},
		{
			name: "normal progress",
			events: []billing.PlaybackEvent{
				{State: billing.PlaybackPlaying, PositionSeconds: 10, Timestamp: at(0)},
				{State: billing.PlaybackPlaying, PositionSeconds: 18, Timestamp: at(10)},
			},
			want: 0,
		},
		{
			name: "backward jump never counts",
			events: []billing.PlaybackEvent{
				{State: billing.PlaybackPlaying, PositionSeconds: 100, Timestamp: at(0)},
				{State: billing.PlaybackPlaying, PositionSeconds: 5, Timestamp: at(10)},
			},
			want: 0,
		},
		{
			name: "jump while paused is not a seek",
			events: []billing.PlaybackEvent{
				{State: billing.PlaybackPaused, PositionSeconds: 10, Timestamp: at(0)},
				{State: billing.PlaybackPlaying, PositionSeconds: 500, Timestamp: at(5)},
			},
			want: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := billing.NewMeter(5)
			for _, ev := range tc.events {
				m.Apply(ev)
			}
			if got := m.SeekCount(); got != tc.want {
				t.Fatalf("seek count = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMeterSeekDoesNotChangeBilledTime(t *testing.T) {
	m := billing.NewMeter(5)
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 0, Timestamp: at(0)})
	// Skip far ahead in the media while only 20s of wall clock pass.
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPlaying, PositionSeconds: 900, Timestamp: at(20)})
	m.Apply(billing.PlaybackEvent{State: billing.PlaybackPaused, PositionSeconds: 910, Timestamp: at(30)})

	if got := m.SeekCount(); got != 1 {
		t.Fatalf("seek count = %d, want 1", got)
	}
	if got := m.Finish(at(30)); got != 30 {
		t.Fatalf("billable seconds = %v, want wall-clock 30", got)
	}
}
