package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/config"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// eventSubjectRoot is the subject space carrying emitted events. One subject
// per (source module, event type) pair keeps the stream filterable.
const eventSubjectRoot = "integration.events"

// EventSubject builds the publish subject for an event.
func EventSubject(sourceModule string, eventType domain.EventType) string {
	return fmt.Sprintf("%s.%s.%s", eventSubjectRoot, sourceModule, string(eventType))
}

// ConsumerAdapter handles connections and subscriptions to NATS JetStream.
type ConsumerAdapter struct {
	nc                *nats.Conn
	js                nats.JetStreamContext
	logger            domain.Logger
	cfg               *config.NATSConfig
	appName           string
	natsMaxAckPending int
}

// NewConsumerAdapter creates a new NATS ConsumerAdapter.
// It establishes a connection to the NATS server, gets a JetStream context,
// and provisions the event stream when it does not exist yet.
func NewConsumerAdapter(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*ConsumerAdapter, func(), error) {
	appFullCfg := cfgProvider.Get()
	natsCfg := appFullCfg.NATS
	appName := appFullCfg.App.ServiceName
	natsMaxAckPending := appFullCfg.App.NATSMaxAckPending

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-%s", appName, appFullCfg.Server.PodID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second), // Connection timeout
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	appLogger.Info(ctx, "Successfully connected to NATS server", "url", nc.ConnectedUrl())

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		appLogger.Error(ctx, "Failed to get JetStream context", "error", err.Error())
		nc.Close()
		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	adapter := &ConsumerAdapter{
		nc:                nc,
		js:                js,
		logger:            appLogger,
		cfg:               &natsCfg,
		appName:           appName,
		natsMaxAckPending: natsMaxAckPending,
	}

	if err := adapter.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}

	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		adapter.Close()
	}

	return adapter, cleanup, nil
}

// ensureStream provisions the event stream when missing. Multiple pods may
// race here; AddStream on an existing identical stream is harmless.
func (a *ConsumerAdapter) ensureStream(ctx context.Context) error {
	_, err := a.js.StreamInfo(a.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", a.cfg.StreamName, err)
	}

	a.logger.Info(ctx, "Event stream not found, creating", "stream_name", a.cfg.StreamName)
	_, err = a.js.AddStream(&nats.StreamConfig{
		Name:      a.cfg.StreamName,
		Subjects:  []string{eventSubjectRoot + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", a.cfg.StreamName, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (a *ConsumerAdapter) Close() {
	if a.nc != nil && !a.nc.IsClosed() {
		a.logger.Info(context.Background(), "Draining NATS connection...")
		if err := a.nc.Drain(); err != nil {
			a.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
		} else {
			a.logger.Info(context.Background(), "NATS connection drained successfully.")
		}
		// Drain closes the connection once complete, no explicit Close needed.
	}
}

// JetStreamContext returns the JetStream context.
func (a *ConsumerAdapter) JetStreamContext() nats.JetStreamContext {
	return a.js
}

// NatsConn returns the underlying NATS connection.
func (a *ConsumerAdapter) NatsConn() *nats.Conn {
	return a.nc
}

// SubscribeToEvents subscribes to every emitted event with a durable queue
// group, so pods share the processing load and a restart resumes where the
// consumer left off. Messages are manually acked by the handler.
func (a *ConsumerAdapter) SubscribeToEvents(ctx context.Context, handler nats.MsgHandler) (*nats.Subscription, error) {
	if a.js == nil {
		return nil, fmt.Errorf("JetStream context is not initialized")
	}

	subject := eventSubjectRoot + ".>"
	queueGroup := a.cfg.ConsumerName

	a.logger.Info(ctx, "Attempting to subscribe to NATS subject with queue group",
		"subject", subject,
		"queue_group", queueGroup,
		"stream_name", a.cfg.StreamName,
	)

	sub, err := a.js.QueueSubscribe(
		subject,
		queueGroup,
		handler,
		nats.Durable(a.cfg.ConsumerName),
		nats.DeliverAll(),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxAckPending(a.natsMaxAckPending),
	)
	if err != nil {
		a.logger.Error(ctx, "Failed to subscribe to NATS subject",
			"subject", subject, "queue_group", queueGroup, "error", err.Error())
		return nil, fmt.Errorf("failed to subscribe to NATS subject %s: %w", subject, err)
	}

	a.logger.Info(ctx, "Successfully subscribed to NATS subject with queue group",
		"subject", subject, "queue_group", queueGroup)
	return sub, nil
}
