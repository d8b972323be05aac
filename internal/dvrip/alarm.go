package dvrip

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Notification is one realtime alarm push. The push channel carries no
// image bytes; resolution happens later against the file index.
type Notification struct {
	Timestamp time.Time
	Event     string // raw vendor string, e.g. "MotionDetect"
	Code      string // normalized: M motion, H human, L video loss, V blind
	Channel   int
}

// ParseEventCode maps vendor event strings to the single-letter codes the
// camera uses in file names.
func ParseEventCode(event string) string {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "motion") || strings.Contains(e, "md"):
		return "M"
	case strings.Contains(e, "human"):
		return "H"
	case strings.Contains(e, "videoloss"):
		return "L"
	case strings.Contains(e, "blind") || strings.Contains(e, "mask"):
		return "V"
	default:
		return "E"
	}
}

type ListenerConfig struct {
	Session Config
	// Heartbeat is the stall threshold: with keepalives flowing the camera
	// answers well inside this window, so a silent period this long means
	// the channel is dead even if TCP still looks up.
	Heartbeat time.Duration
	Backoff   time.Duration
	// MaxBackoff caps the resubscribe delay.
	MaxBackoff time.Duration
}

// Listener holds the realtime alarm subscription. It runs independently of
// the query/download path on its own session; failures here never abort
// resolution, they only cost realtime signals until resubscribe succeeds.
type Listener struct {
	cfg     ListenerConfig
	handler func(Notification)

	// injectable for tests
	connect func(ctx context.Context, cfg Config) (*Session, error)

	onResubscribe func()

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewListener(cfg ListenerConfig, handler func(Notification)) *Listener {
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 90 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		connect: connect,
		stop:    make(chan struct{}),
	}
}

// OnResubscribe registers a hook invoked each time the channel is torn
// down and rebuilt (metrics).
func (l *Listener) OnResubscribe(fn func()) { l.onResubscribe = fn }

func (l *Listener) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Listener) run() {
	defer l.wg.Done()

	backoff := l.cfg.Backoff
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		err := l.subscribeOnce()
		select {
		case <-l.stop:
			return
		default:
		}

		if err != nil {
			log.Printf("[AlarmListener] channel lost: %v (resubscribing in %v)", err, backoff)
		}
		if l.onResubscribe != nil {
			l.onResubscribe()
		}

		select {
		case <-l.stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.cfg.MaxBackoff {
			backoff = l.cfg.MaxBackoff
		}
	}
}

// subscribeOnce holds one alarm channel until it errors or stalls.
func (l *Listener) subscribeOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Session.withDefaults().DialTimeout+l.cfg.Session.withDefaults().IOTimeout)
	s, err := l.connect(ctx, l.cfg.Session)
	cancel()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.notify(msgAlarmSet, map[string]string{
		"Name":      "",
		"SessionID": s.hexID(),
	}); err != nil {
		return err
	}
	log.Printf("[AlarmListener] subscribed, session %s", s.hexID())

	// The read loop owns the socket; keepalives are fired write-only and
	// their replies count as heartbeat traffic.
	kaStop := make(chan struct{})
	defer close(kaStop)
	go func() {
		ticker := time.NewTicker(s.alive)
		defer ticker.Stop()
		for {
			select {
			case <-kaStop:
				return
			case <-ticker.C:
				if err := s.notify(msgKeepAlive, map[string]string{
					"Name":      "KeepAlive",
					"SessionID": s.hexID(),
				}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-l.stop:
			return nil
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(l.cfg.Heartbeat)); err != nil {
			return err
		}
		pkt, err := readPacket(s.conn)
		if err != nil {
			s.markDead()
			return timeoutErr(err)
		}
		if pkt.MessageID != msgAlarmPush {
			continue // keepalive replies and other chatter reset the stall clock
		}
		l.dispatch(pkt.Payload)
	}
}

type alarmPush struct {
	AlarmInfo struct {
		Channel   int    `json:"Channel"`
		Event     string `json:"Event"`
		StartTime string `json:"StartTime"`
		Status    string `json:"Status"`
	} `json:"AlarmInfo"`
}

func (l *Listener) dispatch(payload []byte) {
	var push alarmPush
	if err := decodeJSON(payload, &push); err != nil {
		log.Printf("[AlarmListener] undecodable alarm push: %v", err)
		return
	}
	// Stop edges would double every alarm; only the leading edge counts.
	if strings.EqualFold(push.AlarmInfo.Status, "Stop") {
		return
	}

	ts := time.Now()
	if t, err := time.Parse(TimeLayout, push.AlarmInfo.StartTime); err == nil {
		ts = t
	}

	l.handler(Notification{
		Timestamp: ts,
		Event:     push.AlarmInfo.Event,
		Code:      ParseEventCode(push.AlarmInfo.Event),
		Channel:   push.AlarmInfo.Channel,
	})
}
