package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "todo.events"

	// RoutingKeyVerification is consumed by the mail worker.
	RoutingKeyVerification = "auth.email.verify.requested"

	confirmWait = 2 * time.Second
)

// RabbitMQNotifier publishes messages as persistent JSON to a topic exchange
// and waits for the broker to confirm each one.
type RabbitMQNotifier struct {
	url      string
	exchange string

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	confirmCh <-chan amqp.Confirmation
}

func NewRabbitMQNotifier(url string) (*RabbitMQNotifier, error) {
	n := &RabbitMQNotifier{url: url, exchange: DefaultExchange}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *RabbitMQNotifier) SendVerification(ctx context.Context, msg VerificationMessage) error {
	return n.publishJSON(ctx, RoutingKeyVerification, msg)
}

func (n *RabbitMQNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset()
	return nil
}

func (n *RabbitMQNotifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	n.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	n.conn = conn
	n.ch = ch
	return nil
}

func (n *RabbitMQNotifier) ensureConnected() error {
	if n.conn != nil && !n.conn.IsClosed() && n.ch != nil {
		return nil
	}
	n.reset()
	return n.connect()
}

func (n *RabbitMQNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}

func (n *RabbitMQNotifier) publishJSON(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ensureConnected(); err != nil {
		return err
	}

	tag := n.ch.GetNextPublishSeqNo()
	if err := n.ch.PublishWithContext(ctx, n.exchange, routingKey, false, false, newPublishing(body)); err != nil {
		n.reset()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	if err := awaitConfirm(ctx, n.confirmCh, tag, confirmWait); err != nil {
		// The late confirmation would otherwise be read by the next publish.
		n.reset()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

var (
	errConfirmClosed  = errors.New("channel closed before confirm")
	errConfirmTimeout = errors.New("confirm timeout")
)

// awaitConfirm waits for the confirmation carrying tag. Confirmations for
// earlier tags are left over from abandoned publishes and are skipped.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case conf, ok := <-confirms:
			if !ok {
				return errConfirmClosed
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if !conf.Ack {
				return fmt.Errorf("nacked (tag %d)", conf.DeliveryTag)
			}
			return nil
		case <-timer.C:
			return errConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newPublishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
}
