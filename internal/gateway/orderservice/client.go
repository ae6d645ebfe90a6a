// Package orderservice is the HTTP client for the order service: the
// engine's only wire dependency. It reads order records and performs the
// single settle call that commits a payment.
package orderservice

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sokrith/pos-settlement/internal/domain/order"
)

var _ order.Gateway = (*Client)(nil)

// Client talks to the order service REST API.
type Client struct {
	base string
	http *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests and for
// custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client for the order service at baseURL. The default
// transport is otel-instrumented with a 15s overall timeout; commit timeouts
// are delegated here and surface as transient failures.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch reads the order record by id.
func (c *Client) Fetch(ctx context.Context, id string) (*order.Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.orderURL(id), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &order.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeOrder(resp.Body, id)
	case resp.StatusCode == http.StatusNotFound:
		return nil, order.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &order.TransientError{Err: errors.Errorf("order service returned %d", resp.StatusCode)}
	default:
		return nil, errors.Errorf("fetch order %s: unexpected status %d", id, resp.StatusCode)
	}
}

// Settle submits the settlement payload for an order and maps the backend's
// verdict onto the gateway error taxonomy.
func (c *Client) Settle(ctx context.Context, id string, sr order.SettleRequest) (*order.SettleResult, error) {
	body := encodeSettleRequest(sr)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.orderURL(id)+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &order.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeSettleResult(resp.Body)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, decodeValidationError(resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return nil, order.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, order.ErrAlreadyPaid
	default:
		return nil, &order.TransientError{Err: errors.Errorf("order service returned %d", resp.StatusCode)}
	}
}

func (c *Client) orderURL(id string) string {
	return c.base + "/api/orders/" + url.PathEscape(id)
}

// encodeSettleRequest serializes the settle payload.
func encodeSettleRequest(sr order.SettleRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("currency")
	e.Str(sr.Currency)
	e.FieldStart("rielAmount")
	if sr.RielAmount != nil {
		e.Str(*sr.RielAmount)
	} else {
		e.Null()
	}
	e.FieldStart("splitBill")
	e.Bool(sr.SplitBill)
	e.FieldStart("splitAmounts")
	encodePanels(&e, sr.SplitAmounts)
	e.FieldStart("paymentMethods")
	encodePanels(&e, sr.PaymentMethods)
	e.FieldStart("mixedPayments")
	e.Bool(sr.MixedPayments)
	e.FieldStart("mixedCurrency")
	e.Bool(sr.MixedCurrency)
	e.ObjEnd()
	return e.Bytes()
}

func encodePanels(e *jx.Encoder, panels []order.SettlePanel) {
	e.ArrStart()
	for _, p := range panels {
		e.ObjStart()
		e.FieldStart("currency")
		e.Str(p.Currency)
		e.FieldStart("method")
		e.Str(p.Method)
		e.FieldStart("amount")
		e.Str(p.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// decodeOrder parses the order record. A record without a total is unusable:
// the payment screen halts rather than calculate over garbage.
func decodeOrder(r io.Reader, id string) (*order.Order, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &order.TransientError{Err: err}
	}

	o := &order.Order{ID: id}
	totalSeen := false

	d := jx.DecodeBytes(data)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			o.ID = v
		case "subtotal":
			return decodeDecimal(d, &o.Subtotal)
		case "tax":
			return decodeDecimal(d, &o.Tax)
		case "discount":
			return decodeDecimal(d, &o.Discount)
		case "total":
			totalSeen = true
			return decodeDecimal(d, &o.Total)
		case "currency":
			v, err := d.Str()
			if err != nil {
				return err
			}
			o.Currency = v
		case "paid":
			v, err := d.Bool()
			if err != nil {
				return err
			}
			o.Paid = v
		case "paidAt":
			return decodeTime(d, &o.PaidAt)
		case "splitPayments":
			return d.Arr(func(d *jx.Decoder) error {
				var sp order.SplitPayment
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "currency":
						v, err := d.Str()
						if err != nil {
							return err
						}
						sp.Currency = v
					case "method":
						v, err := d.Str()
						if err != nil {
							return err
						}
						sp.Method = v
					case "amount":
						return decodeDecimal(d, &sp.Amount)
					default:
						return d.Skip()
					}
					return nil
				}); err != nil {
					return err
				}
				o.Splits = append(o.Splits, sp)
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if !totalSeen {
		return nil, order.ErrIncomplete
	}
	return o, nil
}

func decodeSettleResult(r io.Reader) (*order.SettleResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &order.TransientError{Err: err}
	}

	res := &order.SettleResult{}
	d := jx.DecodeBytes(data)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "receiptId":
			v, err := d.Str()
			if err != nil {
				return err
			}
			res.ReceiptID = v
		case "paidAt":
			return decodeTime(d, &res.PaidAt)
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode settle result")
	}
	if res.PaidAt.IsZero() {
		res.PaidAt = time.Now().UTC()
	}
	return res, nil
}

// decodeValidationError extracts the backend's error messages from a 400
// response body of the form {"errors": [...]} or {"message": "..."}.
func decodeValidationError(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &order.ValidationError{Messages: []string{"payment rejected"}}
	}

	var messages []string
	d := jx.DecodeBytes(data)
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "errors":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				messages = append(messages, v)
				return nil
			})
		case "message":
			v, err := d.Str()
			if err != nil {
				return err
			}
			messages = append(messages, v)
			return nil
		default:
			return d.Skip()
		}
	})
	if len(messages) == 0 {
		messages = []string{"payment rejected"}
	}
	return &order.ValidationError{Messages: messages}
}

// decodeDecimal accepts JSON numbers and string-encoded decimals.
func decodeDecimal(d *jx.Decoder, out *decimal.Decimal) error {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return errors.Wrap(err, "parse decimal")
		}
		*out = v
		return nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		v, err := decimal.NewFromString(string(n))
		if err != nil {
			return errors.Wrap(err, "parse decimal")
		}
		*out = v
		return nil
	case jx.Null:
		*out = decimal.Zero
		return d.Null()
	default:
		return errors.New("unexpected decimal token")
	}
}

func decodeTime(d *jx.Decoder, out *time.Time) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return errors.Wrap(err, "parse time")
	}
	*out = t
	return nil
}
