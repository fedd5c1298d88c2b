package dispatch

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"semefo/internal/services"
)

// Probe checks that a broker answers and hosts the stream without creating
// anything. It is meant for status commands that must not alter the broker.
type Probe struct {
	URL     string
	Stream  string
	Timeout time.Duration
}

// Ping dials the broker, looks the stream up and disconnects.
func (p Probe) Ping(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nc, err := nats.Connect(p.URL, nats.Name("semefo-probe"), nats.Timeout(timeout))
	if err != nil {
		return services.Wrap(services.ErrTransient, "dispatch", "probe", p.URL, err)
	}
	defer nc.Close()
	if p.Stream == "" {
		return nil
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return services.Wrap(services.ErrTransient, "dispatch", "probe", p.URL, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := js.Stream(ctx, p.Stream); err != nil {
		return services.Wrap(services.ErrTransient, "dispatch", "probe", p.Stream, err)
	}
	return nil
}
