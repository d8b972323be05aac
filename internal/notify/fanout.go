package notify

import "github.com/ferZyx/ip-cam-monitor/internal/alarm"

// Fanout broadcasts to every configured publisher.
type Fanout []alarm.Publisher

func (f Fanout) PublishResolved(ev *alarm.Event) {
	for _, p := range f {
		p.PublishResolved(ev)
	}
}
