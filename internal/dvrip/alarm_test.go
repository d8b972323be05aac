package dvrip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventCode(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{"MotionDetect", "M"},
		{"md", "M"},
		{"HumanDetect", "H"},
		{"VideoLoss", "L"},
		{"VideoBlind", "V"},
		{"VideoMask", "V"},
		{"SomethingElse", "E"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseEventCode(tc.event), "event %q", tc.event)
	}
}

func TestListenerReceivesAlarms(t *testing.T) {
	cam := newFakeCamera(t)
	cam.alarms = []string{
		`{"AlarmInfo":{"Channel":0,"Event":"MotionDetect","StartTime":"2024-01-01 12:00:00","Status":"Start"}}`,
		`{"AlarmInfo":{"Channel":0,"Event":"MotionDetect","StartTime":"2024-01-01 12:00:05","Status":"Stop"}}`,
		`{"AlarmInfo":{"Channel":1,"Event":"HumanDetect","StartTime":"2024-01-01 12:01:00","Status":"Start"}}`,
	}

	var mu sync.Mutex
	var got []Notification
	done := make(chan struct{})

	l := NewListener(ListenerConfig{Session: cam.config()}, func(n Notification) {
		mu.Lock()
		got = append(got, n)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	l.Start()
	defer l.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alarms")
	}

	mu.Lock()
	defer mu.Unlock()
	// The Stop edge is suppressed; only two leading edges arrive.
	require.Len(t, got, 2)
	assert.Equal(t, "M", got[0].Code)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.Equal(t, "H", got[1].Code)
	assert.Equal(t, 1, got[1].Channel)
}

func TestListenerResubscribesAfterFailure(t *testing.T) {
	attempts := make(chan int, 16)
	n := 0

	l := NewListener(ListenerConfig{
		Session:    Config{Address: "127.0.0.1:1"},
		Backoff:    10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	}, func(Notification) {})

	l.connect = func(ctx context.Context, cfg Config) (*Session, error) {
		n++
		attempts <- n
		return nil, errors.New("camera unreachable")
	}

	resubs := make(chan struct{}, 16)
	l.OnResubscribe(func() { resubs <- struct{}{} })

	l.Start()
	defer l.Stop()

	// At least three connect attempts with backoff between them.
	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatalf("stalled waiting for connect attempt %d", i+1)
		}
	}
	select {
	case <-resubs:
	case <-time.After(2 * time.Second):
		t.Fatal("resubscribe hook never fired")
	}
}

func TestListenerStopDuringBackoff(t *testing.T) {
	l := NewListener(ListenerConfig{
		Session: Config{Address: "127.0.0.1:1"},
		Backoff: time.Hour, // Stop must not wait this out
	}, func(Notification) {})
	l.connect = func(ctx context.Context, cfg Config) (*Session, error) {
		return nil, errors.New("down")
	}

	l.Start()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on backoff")
	}
}
