package alarm

import (
	"context"
	"log"
	"time"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
)

type PollerConfig struct {
	Interval time.Duration
	// Batch caps how many markers a single pass pulls from the camera.
	Batch    int
	Lookback time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Batch == 0 {
		c.Batch = 20
	}
	if c.Lookback == 0 {
		c.Lookback = 2 * time.Hour
	}
	return c
}

// Poller periodically asks the camera for recent markers and hands the
// unseen ones to the service. It is the safety net behind the realtime
// listener: alarms that arrive while the push channel is down are picked
// up here.
type Poller struct {
	svc      *Service
	q        Querier
	timeline *Timeline
	cfg      PollerConfig

	stopChan chan struct{}
	doneChan chan struct{}
	seeded   bool
}

func NewPoller(svc *Service, q Querier, timeline *Timeline, cfg PollerConfig) *Poller {
	return &Poller{
		svc:      svc,
		q:        q,
		timeline: timeline,
		cfg:      cfg.withDefaults(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (p *Poller) Start() {
	log.Printf("[Poller] starting, interval %s", p.cfg.Interval)
	go p.run()
}

func (p *Poller) Stop() {
	close(p.stopChan)
	<-p.doneChan
	log.Println("[Poller] stopped")
}

func (p *Poller) run() {
	defer close(p.doneChan)

	// Immediate first pass so a restart does not wait a full interval.
	p.poll()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval)
	defer cancel()

	markers, err := p.q.RecentMarkers(ctx, time.Now(), p.cfg.Batch, p.cfg.Lookback)
	if err != nil {
		log.Printf("[Poller] marker poll failed: %v", err)
		return
	}

	var fresh []dvrip.FileDescriptor
	for _, fd := range markers {
		if p.timeline.MarkKnown(fd.Path) {
			fresh = append(fresh, fd)
		}
	}

	if !p.seeded {
		// First pass only records what already exists so a restart does
		// not re-resolve old history.
		p.seeded = true
		log.Printf("[Poller] seeded %d existing markers", len(fresh))
		return
	}
	if len(fresh) == 0 {
		return
	}

	// Oldest first so resolved events arrive in chronological order.
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}

	log.Printf("[Poller] resolving %d new markers", len(fresh))
	events, err := p.svc.ResolveNewMarkers(ctx, fresh)
	if err != nil {
		log.Printf("[Poller] resolve failed: %v", err)
		return
	}
	resolved := 0
	for _, ev := range events {
		if ev.Resolved() {
			resolved++
		}
	}
	log.Printf("[Poller] pass done: %d events, %d resolved", len(events), resolved)
}
