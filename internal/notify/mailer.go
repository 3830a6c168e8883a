// Package notify delivers outgoing email. Delivery is fire-and-forget from the
// engine's point of view: a failed send is logged and never undoes the
// operation that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"auction-settlement/utils"
)

// Message is one outgoing email
type Message struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Templates used by the engine
const (
	TemplateVerifyEmail   = "verify-email"
	TemplateResetPassword = "reset-password"
	TemplateApproved      = "account-approved"
	TemplateRejected      = "account-rejected"
)

// LogMailer writes messages to the log instead of sending them. Secrets in
// Data are not logged.
type LogMailer struct{}

// Send logs the message envelope
func (LogMailer) Send(_ context.Context, msg Message) error {
	utils.Info("mail queued", map[string]any{
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
	})
	return nil
}

// Publisher is the part of *amqp.Channel the AMQP mailer uses
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPMailer publishes each message as a persistent JSON job for a mail worker
type AMQPMailer struct {
	ch         Publisher
	conn       *amqp.Connection
	exchange   string
	routingKey string
}

// NewAMQPMailer wraps an already open channel
func NewAMQPMailer(ch Publisher, exchange, routingKey string) *AMQPMailer {
	return &AMQPMailer{ch: ch, exchange: exchange, routingKey: routingKey}
}

// DialAMQPMailer connects to the broker and declares the durable mail queue
// named by routingKey on the default exchange when exchange is empty.
func DialAMQPMailer(url, exchange, routingKey string) (*AMQPMailer, error) {
	const op = "notify.DialAMQPMailer"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exchange == "" {
		if _, err := ch.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	m := NewAMQPMailer(ch, exchange, routingKey)
	m.conn = conn
	return m, nil
}

// Send publishes msg
func (m *AMQPMailer) Send(ctx context.Context, msg Message) error {
	const op = "notify.AMQPMailer.Send"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = m.ch.Publish(
		m.exchange,
		m.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close closes the broker connection opened by DialAMQPMailer
func (m *AMQPMailer) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
