package pix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// ErrNoFallback is returned by FallbackQRCode when no fallback prefix is configured.
var ErrNoFallback = errors.New("QR code fallback path not configured")

// ChargeBody is the payload of PUT /cob/{txid}.
type ChargeBody struct {
	Calendario         Calendar         `json:"calendario"`
	Valor              Value            `json:"valor"`
	Chave              string           `json:"chave,omitempty"`
	SolicitacaoPagador string           `json:"solicitacaoPagador"`
	InfoAdicionais     []AdditionalInfo `json:"infoAdicionais,omitempty"`
}

type Calendar struct {
	Expiracao int `json:"expiracao"`
}

type Value struct {
	Original string `json:"original"`
}

type AdditionalInfo struct {
	Nome  string `json:"nome"`
	Valor string `json:"valor"`
}

// Charge is the provider's view of a charge.
type Charge struct {
	TxID          string    `json:"txid"`
	Status        string    `json:"status"`
	Loc           *Location `json:"loc,omitempty"`
	Location      string    `json:"location,omitempty"`
	PixCopiaECola string    `json:"pixCopiaECola,omitempty"`
}

// LocationID returns the location descriptor id, or "" when the provider did not assign one.
func (c *Charge) LocationID() string {
	if c == nil || c.Loc == nil {
		return ""
	}
	return string(c.Loc.ID)
}

type Location struct {
	ID LocationID `json:"id"`
}

// LocationID accepts both numeric and string ids.
type LocationID string

func (l *LocationID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = LocationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("location id: %w", err)
	}
	*l = LocationID(n.String())
	return nil
}

// QRCode is the response of GET /loc/{id}/qrcode.
type QRCode struct {
	QRCode       string `json:"qrcode"`
	ImagemQRCode string `json:"imagemQrcode"`
}

// Client calls the Pix API with a fixed bearer token.
type Client struct {
	http    *http.Client
	baseURL string
	factory *Factory
}

type response struct {
	status int
	body   []byte
}

func (c *Client) PutCharge(ctx context.Context, txid string, body ChargeBody) (*Charge, error) {
	var out Charge
	if err := c.call(ctx, "put_charge", http.MethodPut, "/cob/"+url.PathEscape(txid), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCharge(ctx context.Context, txid string) (*Charge, error) {
	var out Charge
	if err := c.call(ctx, "get_charge", http.MethodGet, "/cob/"+url.PathEscape(txid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QRCode(ctx context.Context, locID string) (*QRCode, error) {
	var out QRCode
	if err := c.call(ctx, "qrcode", http.MethodGet, "/loc/"+url.PathEscape(locID)+"/qrcode", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FallbackQRCode retries the QR lookup once under the fallback prefix with a
// newly obtained token. When cause shows the provider rejected the previous
// token, the cache is invalidated first so a new exchange happens.
func (c *Client) FallbackQRCode(ctx context.Context, locID string, cause error) (*QRCode, error) {
	f := c.factory
	if f.cfg.FallbackPath == "" {
		return nil, ErrNoFallback
	}

	var pe *domainErrors.ProviderError
	if errors.As(cause, &pe) && (pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden) {
		f.tokens.Invalidate()
	}

	fallback, err := f.build(ctx, f.cfg.FallbackPath)
	if err != nil {
		return nil, err
	}
	if f.metrics != nil {
		f.metrics.QRFallbacks.Inc()
	}

	var out QRCode
	if err := fallback.call(ctx, "qrcode_fallback", http.MethodGet, "/loc/"+url.PathEscape(locID)+"/qrcode", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	resp, err := c.factory.breaker.Execute(func() (*response, error) {
		return c.do(ctx, op, method, path, in)
	})
	c.observe(op, resp, err, time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domainErrors.NewProviderError(op, 0, "", fmt.Errorf("%w: %w", domainErrors.ErrProviderUnavailable, err))
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return domainErrors.NewProviderError(op, resp.status, truncate(resp.body),
			fmt.Errorf("%w: malformed response: %w", domainErrors.ErrProviderProtocol, err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in any) (*response, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domainErrors.NewProviderError(op, 0, "", fmt.Errorf("%w: %w", domainErrors.ErrTransport, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domainErrors.NewProviderError(op, 0, "", fmt.Errorf("%w: %w", domainErrors.ErrTransport, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domainErrors.NewProviderError(op, resp.StatusCode, "", fmt.Errorf("%w: read body: %w", domainErrors.ErrTransport, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domainErrors.NewProviderError(op, resp.StatusCode, truncate(body), domainErrors.ErrProviderRejected)
	}
	return &response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) observe(op string, resp *response, err error, elapsed time.Duration) {
	m := c.factory.metrics
	if m == nil {
		return
	}
	status := "error"
	var pe *domainErrors.ProviderError
	switch {
	case err == nil && resp != nil:
		status = strconv.Itoa(resp.status)
	case errors.As(err, &pe) && pe.StatusCode > 0:
		status = strconv.Itoa(pe.StatusCode)
	}
	m.ProviderRequests.WithLabelValues(op, status).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
