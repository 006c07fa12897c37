// accolade/pkg/identity/client.go

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"rgehrsitz/accolade/pkg/logging"
)

const (
	DefaultTimeout = 10 * time.Second
	MaxTries       = 3
)

// Client talks to a FASJSON-style directory API:
//
//	GET <base>/v1/users/<username>/       -> {"result": {...}}
//	GET <base>/v1/search/users/?key=value -> {"result": [...]}
type Client struct {
	baseURL string
	http    *http.Client

	// RetryInterval is the first backoff delay; it doubles on each retry.
	RetryInterval time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: timeout},
		RetryInterval: 500 * time.Millisecond,
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("directory returned HTTP %d: %s", e.status, e.body)
}

func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var resp struct {
		Result *User `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/v1/users/%s/", c.baseURL, url.PathEscape(username))
	found, err := c.get(ctx, endpoint, &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) Exists(ctx context.Context, username string) (bool, error) {
	user, err := c.GetUser(ctx, username)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

func (c *Client) Search(ctx context.Context, criteria map[string]string) ([]User, error) {
	q := url.Values{}
	for k, v := range criteria {
		q.Set(k, v)
	}
	var resp struct {
		Result []User `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/v1/search/users/?%s", c.baseURL, q.Encode())
	found, err := c.get(ctx, endpoint, &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Result, nil
}

// get fetches endpoint into out, retrying transient failures. It reports
// false without error on 404.
func (c *Client) get(ctx context.Context, endpoint string, out any) (bool, error) {
	found := true
	attempt := 0

	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			return &apiError{status: resp.StatusCode, body: resp.Status}
		case resp.StatusCode >= 300:
			return backoff.Permanent(&apiError{status: resp.StatusCode, body: resp.Status})
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode directory response: %w", err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logging.Logger.Warn().Err(err).Str("url", endpoint).Int("attempt", attempt).
			Dur("retry_in", wait).Msg("Directory call failed, retrying")
	}

	if err := backoff.RetryNotify(op, c.backOff(ctx), notify); err != nil {
		if isTransient(err) {
			return false, logging.NewError(logging.ErrorTypeTransient, "directory request failed",
				fmt.Errorf("%w: %v", ErrTransient, err), map[string]interface{}{"url": endpoint})
		}
		return false, err
	}
	return found, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxTries-1), ctx)
}

// isTransient covers network errors, timeouts and gateway responses.
func isTransient(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == http.StatusBadGateway ||
			ae.status == http.StatusServiceUnavailable ||
			ae.status == http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
