package pushsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimuhq/elimu/core"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var upgrader = websocket.Upgrader{}

// pushServer runs handle on every upgraded connection and returns a Listener
// pointed at it.
func pushServer(t *testing.T, handle func(conn *websocket.Conn)) *Listener {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	return NewListener(&core.Config{
		Mpesa: core.MpesaConfig{PushURL: "ws" + strings.TrimPrefix(srv.URL, "http")},
	}, nopLogger{})
}

func readRegistration(t *testing.T, conn *websocket.Conn) registration {
	t.Helper()
	var reg registration
	require.NoError(t, conn.ReadJSON(&reg))
	return reg
}

func TestListenerAwait(t *testing.T) {
	ctx := context.Background()

	t.Run("success notification", func(t *testing.T) {
		listener := pushServer(t, func(conn *websocket.Conn) {
			reg := readRegistration(t, conn)
			assert.Equal(t, "register", reg.Action)
			assert.Equal(t, "ABC123", reg.CheckoutRequestID)

			_ = conn.WriteJSON(map[string]interface{}{
				"status":  "success",
				"message": "payment received",
				"data": map[string]string{
					"transactionId": "XYZ",
					"phone":         "0712345678",
				},
			})
		})

		outcome, err := listener.Await(ctx, "ABC123")
		require.NoError(t, err)
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, "XYZ", outcome.TransactionID)
		assert.Equal(t, "0712345678", outcome.PayerPhone)
	})

	t.Run("capitalized transaction ID field", func(t *testing.T) {
		listener := pushServer(t, func(conn *websocket.Conn) {
			readRegistration(t, conn)
			_ = conn.WriteJSON(map[string]interface{}{
				"status": "success",
				"data":   map[string]string{"TransactionID": "XYZ"},
			})
		})

		outcome, err := listener.Await(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "XYZ", outcome.TransactionID)
	})

	t.Run("failure notification", func(t *testing.T) {
		listener := pushServer(t, func(conn *websocket.Conn) {
			readRegistration(t, conn)
			_ = conn.WriteJSON(map[string]interface{}{
				"status":  "failed",
				"message": "Request cancelled by user",
			})
		})

		outcome, err := listener.Await(ctx, "ABC123")
		require.NoError(t, err)
		assert.True(t, outcome.Failed())
		assert.Equal(t, "Request cancelled by user", outcome.ReasonText)
	})

	t.Run("channel dropped before the notification", func(t *testing.T) {
		listener := pushServer(t, func(conn *websocket.Conn) {
			readRegistration(t, conn)
			// close without delivering anything
		})

		_, err := listener.Await(ctx, "ABC123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "push channel closed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		listener := pushServer(t, func(conn *websocket.Conn) {
			readRegistration(t, conn)
			// hold the connection open until the client gives up
			_, _, _ = conn.ReadMessage()
		})

		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		_, err := listener.Await(cctx, "ABC123")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unreachable channel", func(t *testing.T) {
		listener := NewListener(&core.Config{
			Mpesa: core.MpesaConfig{PushURL: "ws://127.0.0.1:1/push"},
		}, nopLogger{})

		_, err := listener.Await(ctx, "ABC123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialing push channel")
	})
}

// guards the registration wire format
func TestRegistrationEncoding(t *testing.T) {
	data, err := json.Marshal(registration{Action: "register", CheckoutRequestID: "ABC123"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"register","checkoutRequestId":"ABC123"}`, string(data))
}
