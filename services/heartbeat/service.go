// Package heartbeat publishes a liveness beat on sys/heartbeat so a host on
// the bridge can tell a quiet knob from a dead board.
package heartbeat

import (
	"context"
	"time"

	"rotary-go/bus"
	"rotary-go/types"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicHeartbeat       = bus.Topic{"sys", "heartbeat"}
)

const defaultInterval = time.Second

// Topic is where beats are published.
func Topic() bus.Topic { return topicHeartbeat }

type Service struct {
	// Interval overrides the default period of one second.
	Interval time.Duration
	// Quiet suppresses the console line.
	Quiet bool
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	start := time.Now()
	var seq uint32
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case t := <-tick.C:
			seq++
			hb := types.Heartbeat{Seq: seq, UptimeMs: t.Sub(start).Milliseconds()}
			conn.Publish(conn.NewMessage(topicHeartbeat, hb, false))
			if !s.Quiet {
				println("[heartbeat]", t.Format("15:04:05"), "seq", seq)
			}
		case msg := <-cfgSub.Channel():
			if c, ok := msg.Payload.(types.HeartbeatConfig); ok && c.IntervalMs > 0 {
				tick.Reset(time.Duration(c.IntervalMs) * time.Millisecond)
				if !s.Quiet {
					println("[heartbeat] interval set to", c.IntervalMs, "ms")
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
