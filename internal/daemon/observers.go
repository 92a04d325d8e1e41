package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/config"
)

// Observers bridges bus events to the daemon's side channels: connection
// flips update the health service, relay errors are forwarded to Sentry
// when a DSN is configured.
type Observers struct {
	b      *bus.Bus
	srv    *Server
	logger *zap.Logger
	sentry bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewObservers wires the observer set and initializes Sentry if enabled.
func NewObservers(cfg *config.Config, b *bus.Bus, srv *Server, logger *zap.Logger) (*Observers, error) {
	o := &Observers{b: b, srv: srv, logger: logger.Named("observers")}
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		o.sentry = true
		o.logger.Info("sentry error forwarding enabled")
	}
	return o, nil
}

// Start subscribes to the bus and begins forwarding.
func (o *Observers) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	events, unsub := o.b.Subscribe("", 64)
	go func() {
		defer close(o.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				o.handle(evt)
			}
		}
	}()
}

// Stop halts forwarding and flushes pending Sentry reports.
func (o *Observers) Stop() {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
	if o.sentry {
		sentry.Flush(2 * time.Second)
	}
}

func (o *Observers) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindConnection:
		change, ok := evt.Payload.(bus.ConnectionChange)
		if !ok {
			return
		}
		o.srv.SetRelayServing(change.Connected)
	case bus.KindError:
		notice, ok := evt.Payload.(bus.ErrorNotice)
		if !ok {
			return
		}
		if o.sentry {
			sentry.CaptureMessage(notice.Message)
		}
		o.logger.Warn("relay error", zap.String("message", notice.Message))
	}
}
