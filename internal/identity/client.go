package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL        = "https://randomuser.me/api/"
	defaultRequestTimeout = 5 * time.Second
)

var (
	// ErrUnreachable marks network-level failures reaching the provider.
	ErrUnreachable = errors.New("identity: provider unreachable")
	// ErrProviderStatus marks a reachable provider that answered with a failure.
	ErrProviderStatus = errors.New("identity: provider error")
)

// UnreachableError wraps the transport failure.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("identity: provider unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// StatusError reports a non-success HTTP status from the provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity: unexpected status %d", e.StatusCode)
}

func (e *StatusError) Is(target error) bool { return target == ErrProviderStatus }

// Query filters one candidate batch.
type Query struct {
	Count       int
	Gender      string
	Nationality string
}

// Name is one candidate first/last pair.
type Name struct {
	First string
	Last  string
}

// Provider returns candidate name pairs.
type Provider interface {
	FetchNames(ctx context.Context, q Query) ([]Name, error)
}

// Client talks to a randomuser.me compatible API.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient constructs a client; a non-positive timeout falls back to 5s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// randomUserPayload maps the subset of the randomuser.me response we read.
type randomUserPayload struct {
	Results []struct {
		Name struct {
			First string `json:"first"`
			Last  string `json:"last"`
		} `json:"name"`
	} `json:"results"`
}

// FetchNames requests q.Count candidates in provider order.
func (c *Client) FetchNames(ctx context.Context, q Query) ([]Name, error) {
	if c == nil {
		return nil, fmt.Errorf("identity: nil client")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if q.Count <= 0 {
		return nil, nil
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("identity: parse base url: %w", err)
	}
	params := endpoint.Query()
	params.Set("results", strconv.Itoa(q.Count))
	if gender := strings.TrimSpace(q.Gender); gender != "" {
		params.Set("gender", gender)
	}
	if nat := strings.TrimSpace(q.Nationality); nat != "" {
		params.Set("nat", nat)
	}
	endpoint.RawQuery = params.Encode()

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("identity: close response body failed")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}

	var payload randomUserPayload
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrProviderStatus, errUnmarshal)
	}

	names := make([]Name, 0, len(payload.Results))
	for _, r := range payload.Results {
		names = append(names, Name{First: r.Name.First, Last: r.Name.Last})
	}
	return names, nil
}
