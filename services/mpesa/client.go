package mpesasvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/payment"
)

const (
	stkPath    = "/mpesa/stk"
	statusPath = "/mpesa/paymentStatus"
)

// Client drives the mobile-money gateway: it sends STK pushes and queries
// charge status. Confirmations arrive out of band on the push channel.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ payment.Gateway = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	timeout := conf.Mpesa.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: conf.Mpesa.BaseURL,
		apiKey:  conf.Mpesa.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type (
	stkRequest struct {
		Phone  string `json:"phone"`
		Amount int64  `json:"amount"`
	}

	stkResponse struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		Message           string `json:"message"`
	}

	statusRequest struct {
		CheckoutRequestID string `json:"CheckoutRequestId"`
	}

	statusResponse struct {
		ResultCode     json.Number `json:"ResultCode"`
		ResultDesc     string      `json:"ResultDesc"`
		Status         string      `json:"status"`
		Message        string      `json:"message"`
		MpesaReceiptNo string      `json:"MpesaReceiptNumber"`
	}

	errorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

// CreateCharge sends the STK push. The returned checkout request ID may be
// empty even on a 2xx response; callers treat that as a failure.
func (c *Client) CreateCharge(ctx context.Context, phone string, amount int64) (string, error) {
	var res stkResponse
	if err := c.post(ctx, stkPath, stkRequest{Phone: phone, Amount: amount}, &res); err != nil {
		return "", err
	}
	return res.CheckoutRequestID, nil
}

// QueryStatus asks the gateway for the charge's current status.
func (c *Client) QueryStatus(ctx context.Context, checkoutID string) (payment.StatusResult, error) {
	var res statusResponse
	if err := c.post(ctx, statusPath, statusRequest{CheckoutRequestID: checkoutID}, &res); err != nil {
		return payment.StatusResult{}, err
	}
	return payment.StatusResult{
		ResultCode:    res.ResultCode.String(),
		ResultDesc:    res.ResultDesc,
		Status:        res.Status,
		Message:       res.Message,
		TransactionID: res.MpesaReceiptNo,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling gateway")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading gateway response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// surface the gateway's own message verbatim
		var gwErr errorResponse
		if err = json.Unmarshal(raw, &gwErr); err == nil {
			if gwErr.Message != "" {
				return errors.New(gwErr.Message)
			}
			if gwErr.Error != "" {
				return errors.New(gwErr.Error)
			}
		}
		return errors.Errorf("gateway error: %s", resp.Status)
	}

	if err = json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decoding gateway response")
	}
	return nil
}
