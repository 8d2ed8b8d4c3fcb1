package odata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/observability"
	"github.com/tesseradata/tessera/schema"
)

const defaultTimeout = 30 * time.Second

// Client fetches rows from one OData v4 collection endpoint.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        observability.Logger
}

// ClientOption adjusts a Client during construction.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client, usually for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeaders sets headers attached to every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		if len(headers) == 0 {
			return
		}
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRateLimit throttles outbound requests to perSecond with the given
// burst. Zero or negative values disable throttling.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the request logger.
func WithLogger(log observability.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a client for the collection at baseURL. A zero timeout
// falls back to the default.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "?&"),
		httpClient: &http.Client{Timeout: timeout},
		log:        observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Envelope is one decoded OData response. Count is -1 when the service
// omitted @odata.count. Annotations carries the remaining @-prefixed
// top-level members.
type Envelope struct {
	Rows        []schema.Row
	Count       int
	Annotations map[string]any
}

// Fetch issues one GET with the given system query options and decodes the
// response envelope. Failures come back as *errs.E: timeouts and
// cancellations as timeout errors, auth statuses as unauthorized or
// forbidden, anything else as network errors.
func (c *Client) Fetch(ctx context.Context, qry url.Values) (Envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Envelope{}, classifyTransport(err)
		}
	}

	target := c.baseURL
	if encoded := qry.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Envelope{}, errs.New("odata", errs.CodeNetwork,
			errs.WithMessage("create request"), errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Envelope{}, classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, classifyTransport(err)
	}

	c.log.Debug("odata fetch",
		observability.Field{Key: "status", Value: resp.StatusCode},
		observability.Field{Key: "elapsed", Value: time.Since(started)},
	)

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(body)
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return errs.New("odata", errs.CodeUnauthorized, errs.WithHTTP(status))
	case status == http.StatusForbidden:
		return errs.New("odata", errs.CodeForbidden, errs.WithHTTP(status))
	case status < 200 || status >= 300:
		return errs.New("odata", errs.CodeNetwork,
			errs.WithHTTP(status),
			errs.WithMessage(fmt.Sprintf("unexpected status %d: %s", status, trimBody(body))))
	default:
		return nil
	}
}

// classifyTransport maps request failures onto the error taxonomy. Context
// cancellation and deadline expiry count as timeouts, including the client
// timeout surfaced through url.Error.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.New("odata", errs.CodeTimeout, errs.WithCause(err))
	}
	var timeouter interface{ Timeout() bool }
	if errors.As(err, &timeouter) && timeouter.Timeout() {
		return errs.New("odata", errs.CodeTimeout, errs.WithCause(err))
	}
	return errs.New("odata", errs.CodeNetwork, errs.WithCause(err))
}

func decodeEnvelope(body []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, errs.New("odata", errs.CodeNetwork,
			errs.WithMessage("decode response"), errs.WithCause(err))
	}

	env := Envelope{Count: -1}
	if value, ok := raw["value"]; ok {
		if err := json.Unmarshal(value, &env.Rows); err != nil {
			return Envelope{}, errs.New("odata", errs.CodeNetwork,
				errs.WithMessage("decode value"), errs.WithCause(err))
		}
	}

	for key, msg := range raw {
		if !strings.HasPrefix(key, "@") {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		if key == "@odata.count" {
			if n, ok := asCount(v); ok {
				env.Count = n
			}
			continue
		}
		if env.Annotations == nil {
			env.Annotations = make(map[string]any)
		}
		env.Annotations[key] = v
	}
	return env, nil
}

// asCount tolerates services that serialize @odata.count as a JSON string.
func asCount(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func trimBody(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
