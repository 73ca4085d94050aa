package pushsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/payment"
)

// Listener is the confirmation push channel client. One subscription serves
// one checkout attempt: open the channel, announce interest in a single
// checkout request ID, receive one message, close.
type Listener struct {
	url    string
	dialer *websocket.Dialer
	logger core.Logger
}

var _ payment.Listener = (*Listener)(nil)

func NewListener(conf *core.Config, logger core.Logger) *Listener {
	return &Listener{
		url: conf.Mpesa.PushURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type (
	registration struct {
		Action            string `json:"action"`
		CheckoutRequestID string `json:"checkoutRequestId"`
	}

	pushMessage struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			TransactionID    string `json:"transactionId"`
			TransactionIDAlt string `json:"TransactionID"` // some gateway versions capitalize
			Phone            string `json:"phone"`
		} `json:"data"`
	}
)

func (m pushMessage) transactionID() string {
	if m.Data.TransactionID != "" {
		return m.Data.TransactionID
	}
	return m.Data.TransactionIDAlt
}

// Await opens the channel, registers the checkout ID and blocks for the single
// terminal notification. Cancelling ctx closes the channel without delivering
// an outcome; a dropped channel is returned as an error for the caller to
// degrade to a manual status check.
func (l *Listener) Await(ctx context.Context, checkoutID string) (payment.ChargeOutcome, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return payment.ChargeOutcome{}, fmt.Errorf("dialing push channel: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// unblock the read below when ctx is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err = conn.WriteJSON(registration{Action: "register", CheckoutRequestID: checkoutID}); err != nil {
		return payment.ChargeOutcome{}, fmt.Errorf("registering checkout %s: %w", checkoutID, err)
	}

	var msg pushMessage
	if err = conn.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return payment.ChargeOutcome{}, ctx.Err()
		}
		return payment.ChargeOutcome{}, fmt.Errorf("push channel closed: %w", err)
	}

	// best effort; the outcome is already in hand
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)

	if msg.Status == "success" {
		return payment.ChargeOutcome{
			Status:        payment.StatusSucceeded,
			TransactionID: msg.transactionID(),
			PayerPhone:    msg.Data.Phone,
			Timestamp:     time.Now().UTC(),
		}, nil
	}
	return payment.ChargeOutcome{
		Status:     payment.StatusFailed,
		ReasonText: msg.Message,
	}, nil
}
