/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package broker implements C6: a confirmed-publish wire to the notification topic exchange,
// with idempotent topology declaration and a linear-backoff reconnect loop.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// Broker owns the AMQP connection and confirm channel used to publish renewal notifications.
type Broker struct {
	url    string
	logger *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	connecting bool
}

// New creates a Broker that will dial url on Start.
func New(url string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{url: url, logger: logger}
}

// Start opens the initial connection and declares the topology. Subsequent connection loss is
// handled by the reconnect loop started here.
func (b *Broker) Start(ctx context.Context) error {
	if err := b.connect(); err != nil {
		return err
	}
	go b.watch(ctx)
	return nil
}

// IsConnected reports broker liveness.
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.conn.IsClosed() && b.channel != nil
}

// Close shuts the channel and connection down. Safe to call multiple times.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		_ = b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

func (b *Broker) connect() error {
	b.mu.Lock()
	if b.connecting {
		b.mu.Unlock()
		return nil
	}
	b.connecting = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.connecting = false
		b.mu.Unlock()
	}()

	var lastErr error
	for attempt := 1; attempt <= constants.BrokerMaxAttempts; attempt++ {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			lastErr = err
			b.logger.Warn("broker dial failed", "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * constants.BrokerBaseDelay)
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			lastErr = err
			b.logger.Warn("broker channel open failed", "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * constants.BrokerBaseDelay)
			continue
		}

		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			lastErr = err
			continue
		}

		if err := declareTopology(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			lastErr = err
			continue
		}

		b.mu.Lock()
		b.conn = conn
		b.channel = ch
		b.mu.Unlock()

		b.logger.Info("broker connected", "attempt", attempt)
		return nil
	}

	return typederrors.NewBrokerError(lastErr, "failed to connect to broker after %d attempts", constants.BrokerMaxAttempts)
}

// watch blocks on the connection's close notification and reconnects with linear backoff until
// ctx is canceled.
func (b *Broker) watch(ctx context.Context) {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case err := <-closeCh:
			if err != nil {
				b.logger.Error("broker connection closed", "error", err)
			}
			if reconnErr := b.connect(); reconnErr != nil {
				b.logger.Error("broker reconnect failed", "error", reconnErr)
				return
			}
		}
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(constants.BrokerExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare main exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(constants.BrokerDLQExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq exchange: %w", err)
	}

	mainArgs := amqp.Table{
		"x-dead-letter-exchange":    constants.BrokerDLQExchange,
		"x-dead-letter-routing-key": constants.BrokerDLQRoutingKey,
		"x-max-length":              constants.BrokerQueueMaxLength,
		"x-overflow":                "reject-publish",
	}
	if _, err := ch.QueueDeclare(constants.BrokerQueue, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("failed to declare main queue: %w", err)
	}

	dlqArgs := amqp.Table{
		"x-message-ttl": constants.BrokerDLQMessageTTL.Milliseconds(),
		"x-max-length":  constants.BrokerDLQMaxLength,
	}
	if _, err := ch.QueueDeclare(constants.BrokerDLQQueue, true, false, false, false, dlqArgs); err != nil {
		return fmt.Errorf("failed to declare dlq queue: %w", err)
	}

	if err := ch.QueueBind(constants.BrokerQueue, constants.BrokerRoutingKey, constants.BrokerExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind main queue: %w", err)
	}
	if err := ch.QueueBind(constants.BrokerDLQQueue, constants.BrokerDLQRoutingKey, constants.BrokerDLQExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq queue: %w", err)
	}
	return nil
}

// Publish sends payload to the main exchange with a retry_attempts/retry_delay policy for
// internal transport errors, awaiting the broker's publish confirmation.
func (b *Broker) Publish(ctx context.Context, payload domain.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return typederrors.NewBrokerError(err, "failed to marshal notification payload %s", payload.ID)
	}

	var lastErr error
	for attempt := 1; attempt <= constants.BrokerRetryAttempts; attempt++ {
		if err := b.publishOnce(ctx, payload.ID, body); err != nil {
			lastErr = err
			b.logger.Warn("notification publish attempt failed", "payload_id", payload.ID, "attempt", attempt, "error", err)
			time.Sleep(constants.BrokerRetryDelay)
			continue
		}
		return nil
	}
	return typederrors.NewBrokerError(lastErr, "failed to publish notification %s after %d attempts", payload.ID, constants.BrokerRetryAttempts)
}

func (b *Broker) publishOnce(ctx context.Context, payloadID string, body []byte) error {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("broker channel not connected")
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, constants.BrokerExchange, constants.BrokerRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    payloadID,
		Body:         body,
		Headers: amqp.Table{
			"x-retry-count":      0,
			"x-original-timestamp": time.Now().UTC().Format(time.RFC3339),
			"x-source":           constants.BrokerSource,
		},
	})
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}
	ok, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("broker nacked publish of %s", payloadID)
	}
	return nil
}
