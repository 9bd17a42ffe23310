package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NonceTag is the tag name carrying the counter in the secondary source's
// assignment document.
const NonceTag = "Nonce"

// DefaultTimeout bounds every source request.
const DefaultTimeout = 10 * time.Second

// Pair holds the counter as reported by each source.
type Pair struct {
	Primary   string
	Secondary string
}

// Client fetches the nonce counter from both sources for a process.
type Client struct {
	primaryBase   string
	secondaryBase string
	http          *http.Client
	backoff       Backoff
	logger        *slog.Logger
}

// New builds a Client. The same timeout bounds every request to either
// source; only the secondary source is retried.
func New(primaryBase, secondaryBase string, timeout time.Duration, backoff Backoff, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		primaryBase:   strings.TrimRight(primaryBase, "/"),
		secondaryBase: strings.TrimRight(secondaryBase, "/"),
		http:          &http.Client{Timeout: timeout},
		backoff:       backoff,
		logger:        logger,
	}
}

// Fetch retrieves the counter from both sources concurrently and waits for
// both. If either source fails, the pair is indeterminate and only the
// error is returned.
func (c *Client) Fetch(ctx context.Context, processID string) (Pair, error) {
	var (
		primary, secondary string
		primaryErr         error
		secondaryErr       error
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		secondary, secondaryErr = c.fetchSecondary(ctx, processID)
	}()
	primary, primaryErr = c.fetchPrimary(ctx, processID)
	<-done

	if primaryErr != nil {
		return Pair{}, primaryErr
	}
	if secondaryErr != nil {
		return Pair{}, secondaryErr
	}
	return Pair{Primary: primary, Secondary: secondary}, nil
}

// fetchPrimary does a single GET against the scalar endpoint. No retry.
func (c *Client) fetchPrimary(ctx context.Context, processID string) (string, error) {
	url := fmt.Sprintf("%s/%s/at-slot", c.primaryBase, processID)
	body, err := c.get(ctx, "primary", url)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", &Error{Source: "primary", Kind: KindEmptyValue, Err: fmt.Errorf("empty response body")}
	}
	return value, nil
}

// fetchSecondary fetches the assignment document, retrying transient
// failures per the backoff policy.
func (c *Client) fetchSecondary(ctx context.Context, processID string) (string, error) {
	var value string
	err := c.backoff.Do(ctx, func() error {
		var ferr error
		value, ferr = c.fetchSecondaryOnce(ctx, processID)
		if ferr != nil && Retryable(ferr) {
			c.logger.Warn("secondary fetch failed, will retry",
				"process", processID, "error", ferr)
		}
		return ferr
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// latestDoc is the wire shape of the secondary source's document. Pointers
// distinguish a missing section from an empty one.
type latestDoc struct {
	Assignment *struct {
		Tags []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"tags"`
	} `json:"assignment"`
}

func (c *Client) fetchSecondaryOnce(ctx context.Context, processID string) (string, error) {
	url := fmt.Sprintf("%s/%s/latest", c.secondaryBase, processID)
	body, err := c.get(ctx, "secondary", url)
	if err != nil {
		return "", err
	}

	var doc latestDoc
	if jerr := json.Unmarshal(body, &doc); jerr != nil {
		return "", &Error{Source: "secondary", Kind: KindBadDocument, Err: fmt.Errorf("parsing document: %w", jerr)}
	}
	if doc.Assignment == nil {
		return "", &Error{Source: "secondary", Kind: KindBadDocument, Err: fmt.Errorf("document missing assignment")}
	}
	if doc.Assignment.Tags == nil {
		return "", &Error{Source: "secondary", Kind: KindBadDocument, Err: fmt.Errorf("assignment missing tags")}
	}
	for _, tag := range doc.Assignment.Tags {
		if tag.Name == NonceTag {
			if strings.TrimSpace(tag.Value) == "" {
				return "", &Error{Source: "secondary", Kind: KindEmptyValue, Err: fmt.Errorf("%s tag has no value", NonceTag)}
			}
			return strings.TrimSpace(tag.Value), nil
		}
	}
	return "", &Error{Source: "secondary", Kind: KindBadDocument, Err: fmt.Errorf("no %s tag in assignment", NonceTag)}
}

// get performs one bounded GET and returns the body for 2xx responses.
func (c *Client) get(ctx context.Context, src, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Source: src, Kind: KindNetwork, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Source: src, Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Source: src, Kind: KindNetwork, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Source: src, Kind: KindHTTPStatus, Status: resp.StatusCode,
			Err: fmt.Errorf("GET %s: %s", url, resp.Status)}
	}
	return body, nil
}
