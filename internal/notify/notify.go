package notify

import (
	"context"
	"fmt"

	"storefront/internal/model"
	"storefront/internal/queue"
	"storefront/pkg/logging"
)

// Notifier is told about order lifecycle events after the owning transaction commits.
// Callers log a returned error; it never undoes the committed change.
type Notifier interface {
	OrderCreated(ctx context.Context, o model.Order) error
	OrderPaid(ctx context.Context, o model.Order) error
}

// Message is a rendered customer email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Render builds the customer email for an order event.
func Render(evt queue.OrderEvent) Message {
	name := evt.FullName
	if name == "" {
		name = "customer"
	}
	m := Message{To: evt.Email}
	switch evt.Type {
	case queue.EventOrderPaid:
		m.Subject = fmt.Sprintf("Payment confirmed for order #%d", evt.OrderID)
		m.Body = fmt.Sprintf("Hi %s, we received your payment (reference %s, total %d). Your order is being prepared.",
			name, evt.PaymentReference, evt.Total)
	default:
		m.Subject = fmt.Sprintf("We received your order #%d", evt.OrderID)
		m.Body = fmt.Sprintf("Hi %s, your order is waiting for payment. Use reference %s to pay %d.",
			name, evt.PaymentReference, evt.Total)
	}
	return m
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the structured log instead of an SMTP relay.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Message) error {
	if m.To == "" {
		return fmt.Errorf("message %q has no recipient", m.Subject)
	}
	logging.Log(logging.Fields{
		Service: "mailer",
		Step:    "send",
		Status:  "sent",
		Message: m.To + ": " + m.Subject,
	})
	return nil
}

// MailHandler adapts a Mailer to the queue consumer. Orders without an email are skipped.
func MailHandler(m Mailer) queue.Handler {
	return func(ctx context.Context, evt queue.OrderEvent) error {
		if evt.Email == "" {
			return nil
		}
		return m.Send(ctx, Render(evt))
	}
}

// LogNotifier mails synchronously through a Mailer; the default sink.
type LogNotifier struct {
	mailer Mailer
}

func NewLogNotifier(m Mailer) *LogNotifier {
	return &LogNotifier{mailer: m}
}

func (n *LogNotifier) OrderCreated(ctx context.Context, o model.Order) error {
	return MailHandler(n.mailer)(ctx, queue.NewOrderEvent(queue.EventOrderCreated, o))
}

func (n *LogNotifier) OrderPaid(ctx context.Context, o model.Order) error {
	return MailHandler(n.mailer)(ctx, queue.NewOrderEvent(queue.EventOrderPaid, o))
}

// StreamNotifier appends events to the Redis stream outbox; the relay forwards them to Kafka.
type StreamNotifier struct {
	w *queue.StreamWriter
}

func NewStreamNotifier(w *queue.StreamWriter) *StreamNotifier {
	return &StreamNotifier{w: w}
}

func (n *StreamNotifier) OrderCreated(ctx context.Context, o model.Order) error {
	_, err := n.w.Append(ctx, queue.NewOrderEvent(queue.EventOrderCreated, o))
	return err
}

func (n *StreamNotifier) OrderPaid(ctx context.Context, o model.Order) error {
	_, err := n.w.Append(ctx, queue.NewOrderEvent(queue.EventOrderPaid, o))
	return err
}
