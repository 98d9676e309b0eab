// Package heartbeat writes a periodic liveness line to the diagnostic log
// and notes agent restarts as they are published.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"sensoragent-go/bus"
	"sensoragent-go/services/agent"
	"sensoragent-go/x/logx"
)

// Status is the agent view the heartbeat reports on.
type Status interface {
	Interval() time.Duration
	Generation() uint64
	Ready() bool
	State() *agent.DeviceState
}

var _ Status = (*agent.Agent)(nil)

type Service struct {
	Period time.Duration // default 1 min
	Log    func(string)  // default logx.Infof
	Events *bus.Bus      // optional; restarts are logged when set
	Status Status
}

// Line renders one heartbeat.
func Line(s Status) string {
	return fmt.Sprintf("heartbeat: ready=%t interval=%s samples=%d restarts=%d",
		s.Ready(), s.Interval(), s.State().Samples(), s.Generation())
}

func (s *Service) serviceLoop(ctx context.Context) {
	var restarts <-chan *bus.Message
	if s.Events != nil {
		sub := s.Events.Subscribe(agent.TopicRestart)
		defer sub.Unsubscribe()
		restarts = sub.Channel()
	}

	tick := time.NewTicker(s.Period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log("heartbeat: stopping")
			return
		case <-tick.C:
			s.Log(Line(s.Status))
		case m, ok := <-restarts:
			if !ok {
				restarts = nil
				continue
			}
			s.Log(fmt.Sprintf("heartbeat: restart %v", m.Payload))
		}
	}
}

// Start runs the heartbeat until ctx ends.
func (s *Service) Start(ctx context.Context) {
	if s.Period <= 0 {
		s.Period = time.Minute
	}
	if s.Log == nil {
		s.Log = func(l string) { logx.Infof("%s", l) }
	}
	go s.serviceLoop(ctx)
}
