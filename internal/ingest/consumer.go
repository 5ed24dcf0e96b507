package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/config"
	"clipperstats/internal/domain"
	"clipperstats/internal/service"
)

// Consumer subscribes to the decoded-event feed and drives the processor.
// Events are applied strictly one at a time in delivery order; the feed
// guarantees canonical ordering, so a single consumer keeps every
// supply-delta and bucket computation deterministic.
type Consumer struct {
	log       logger.Logger
	processor *service.Processor

	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	durable string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewConsumer(log logger.Logger, cfg *config.IngestConfig, processor *service.Processor) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("ingest config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("ingest url is required")
	}
	if cfg.Subject == "" {
		return nil, errors.New("ingest subject is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}

	opts := []nats.Option{
		nats.Name("clipperstats-ingest"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ingest NATS: %w", err)
	}

	log.Infof("Connected to ingest feed, url=%s subject=%s", cfg.URL, cfg.Subject)

	return &Consumer{
		log:       log,
		processor: processor,
		nc:        nc,
		subject:   cfg.Subject,
		durable:   cfg.Durable,
	}, nil
}

// Start subscribes and launches the consume loop. With a durable name the
// subscription goes through JetStream with explicit acks, so unprocessed
// events are redelivered after a crash; without one it is a plain
// at-most-once subscription for dev setups.
func (c *Consumer) Start(ctx context.Context) error {
	var err error
	if c.durable != "" {
		js, jsErr := c.nc.JetStream()
		if jsErr != nil {
			return fmt.Errorf("failed to init JetStream context: %w", jsErr)
		}
		c.sub, err = js.SubscribeSync(c.subject,
			nats.Durable(c.durable),
			nats.AckExplicit(),
			nats.ManualAck(),
			nats.MaxAckPending(1),
		)
	} else {
		c.sub, err = c.nc.SubscribeSync(c.subject)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}

	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.sub.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			c.log.Errorf("Ingest receive error: %v", err)
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		// malformed payloads are acked away, redelivery cannot fix them
		c.log.Errorf("Failed to decode ingest event: %v", err)
		c.ack(msg)
		return
	}

	if err := c.processor.ProcessEvent(ctx, &ev); err != nil {
		c.log.Errorf("Failed to process event %s: %v", ev.ID(), err)
		c.nak(msg)
		return
	}

	c.ack(msg)
}

func (c *Consumer) ack(msg *nats.Msg) {
	if c.durable == "" {
		return
	}
	if err := msg.Ack(); err != nil {
		c.log.Errorf("Failed to ack message: %v", err)
	}
}

func (c *Consumer) nak(msg *nats.Msg) {
	if c.durable == "" {
		return
	}
	if err := msg.Nak(); err != nil {
		c.log.Errorf("Failed to nak message: %v", err)
	}
}

// Close unsubscribes and waits for the in-flight event to finish.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		if c.sub != nil {
			if err := c.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				c.log.Errorf("Failed to unsubscribe ingest: %v", err)
			}
		}
		c.wg.Wait()
		if c.nc != nil {
			c.nc.Close()
		}
	})
}
