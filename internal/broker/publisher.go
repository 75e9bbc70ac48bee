package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// ExchangeName is the durable topic exchange shared by all platform services.
	ExchangeName = "social.events"
	// RoutingKeyViolations routes moderation notifications to the notification service.
	RoutingKeyViolations = "violation.events"

	maxRetries     = 3 // 4 attempts total
	backoffBase    = time.Second
	confirmTimeout = 5 * time.Second
)

var errNotConnected = errors.New("broker connection unavailable")

// Result is the outcome of a single Publish call. Publish never returns an
// error: every failure path resolves into this struct.
type Result struct {
	Delivered bool
	Detail    string
	MessageID string
}

// Publisher delivers events to the topic exchange in publisher-confirm mode.
// The broker channel is not safe for concurrent use, so the whole
// connect/publish/confirm sequence runs under one mutex; reconnects share the
// same critical section.
type Publisher struct {
	mu       sync.Mutex
	dial     Dialer
	url      string
	conn     Connection
	ch       Channel
	confirms chan amqp.Confirmation
	fallback *FallbackLog
	log      *zap.SugaredLogger
	sleep    func(time.Duration)
}

// NewPublisher constructs a disconnected publisher. The first Publish call
// dials the broker lazily.
func NewPublisher(url string, dial Dialer, fallback *FallbackLog, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		dial:     dial,
		url:      url,
		fallback: fallback,
		log:      log,
		sleep:    time.Sleep,
	}
}

// connect dials the broker, enables confirm mode and declares the exchange.
// Declaring on every (re)connect keeps first use and recovery on one path.
func (p *Publisher) connect() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.log.Infow("connected to broker", "exchange", ExchangeName)
	return nil
}

// teardown drops the connection so the next attempt redials.
func (p *Publisher) teardown() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.ch = nil
	p.confirms = nil
}

// Publish delivers one event to the exchange under routingKey. A fresh message
// id is generated once per call and reused across every retry attempt so
// downstream consumers can deduplicate. Attempt 0 runs immediately; each
// subsequent attempt waits 1s, 2s, 4s. On exhaustion the event is appended to
// the fallback log and Delivered=false is returned.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload map[string]any) Result {
	messageID := uuid.NewString()
	if routingKey == "" {
		return Result{Delivered: false, Detail: "routing key is required", MessageID: messageID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Delivered: false, Detail: "marshal payload: " + err.Error(), MessageID: messageID}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	lastErr := errNotConnected
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			p.log.Warnw("retrying publish", "routing_key", routingKey, "message_id", messageID,
				"attempt", attempt, "delay", delay, "last_error", lastErr.Error())
			p.sleep(delay)
		}

		if p.conn == nil || p.conn.IsClosed() {
			if err := p.connect(); err != nil {
				lastErr = err
				p.teardown()
				continue
			}
		}

		if err := p.ch.PublishWithContext(ctx, ExchangeName, routingKey, true, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		}); err != nil {
			lastErr = err
			p.teardown()
			continue
		}

		outcome, err := p.awaitConfirm()
		switch outcome {
		case confirmAcked:
			p.log.Infow("published event", "routing_key", routingKey, "message_id", messageID)
			return Result{Delivered: true, Detail: "Success", MessageID: messageID}
		case confirmNacked:
			// Broker explicitly refused the message; channel stays usable.
			lastErr = err
		case confirmAmbiguous:
			// No definitive answer. Reporting failure here would invite a
			// duplicate on an already-ambiguous channel, so count it as
			// delivered and force a reconnect for the next call.
			p.log.Warnw("ambiguous confirmation, assuming delivered",
				"routing_key", routingKey, "message_id", messageID)
			p.teardown()
			return Result{Delivered: true, Detail: "Success", MessageID: messageID}
		}
	}

	p.log.Errorw("publish exhausted retries, writing fallback",
		"routing_key", routingKey, "message_id", messageID, "error", lastErr.Error())
	p.fallback.Append(routingKey, payload)
	return Result{Delivered: false, Detail: lastErr.Error(), MessageID: messageID}
}

type confirmOutcome int

const (
	confirmAcked confirmOutcome = iota
	confirmNacked
	confirmAmbiguous
)

func (p *Publisher) awaitConfirm() (confirmOutcome, error) {
	select {
	case conf, ok := <-p.confirms:
		if !ok {
			return confirmAmbiguous, nil
		}
		if conf.Ack {
			return confirmAcked, nil
		}
		return confirmNacked, errors.New("broker rejected delivery (nack)")
	case <-time.After(confirmTimeout):
		return confirmAmbiguous, nil
	}
}

// Close tears down the broker connection. The publisher may be reused; the
// next Publish reconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown()
}
