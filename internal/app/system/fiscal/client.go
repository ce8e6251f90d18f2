// internal/app/system/fiscal/client.go
package fiscal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/metrics"
)

// maxBody bounds how much of a response is read.
const maxBody = 64 << 10

// Client calls the tax-authority HTTP API:
//
//	GET {base}/avis?fiscalNumber=...&reference=...
//
// 200 carries a Result, 404 means the notice is unknown, anything else is
// treated as an outage.
type Client struct {
	base       string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient builds a Client. timeout bounds each request end to end.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

// Lookup implements Lookup.
func (c *Client) Lookup(ctx context.Context, fiscalNumber, reference string) (res Result, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveFiscalLookup(start, err) }()

	q := url.Values{}
	q.Set("fiscalNumber", fiscalNumber)
	q.Set("reference", reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/avis?"+q.Encode(), nil)
	if err != nil {
		return Result{}, &LookupError{Kind: KindInvalidResponse, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Result{}, &LookupError{Kind: KindTimeout, Err: err}
		}
		return Result{}, &LookupError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, &LookupError{Kind: KindNotFound}
	case resp.StatusCode != http.StatusOK:
		return Result{}, &LookupError{Kind: KindUnavailable, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&res); err != nil {
		return Result{}, &LookupError{Kind: KindInvalidResponse, Err: err}
	}
	if strings.TrimSpace(res.TaxYear) == "" {
		return Result{}, &LookupError{Kind: KindInvalidResponse, Err: errors.New("missing taxYear")}
	}
	return res, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
