// Package directory is the client for the external group and project
// directory, the source of truth for team and project visibility.
//
// Every lookup is impersonated: the request runs with the service token but
// a Sudo header naming the subject, so the directory answers with that
// subject's own visibility. A non-200 answer means "not visible to this
// subject" and is never a hard error; only transport faults and 5xx
// responses are.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shipview/shipview/pkg/observability"
)

// Visibility is the typed outcome of an impersonated lookup
type Visibility int

const (
	// VisibilityDenied means the directory answered and the subject cannot
	// see the resource (401/403/404).
	VisibilityDenied Visibility = iota
	// VisibilityGranted means the directory answered 200.
	VisibilityGranted
	// VisibilityUnavailable means the directory could not answer; it must
	// never be conflated with Denied.
	VisibilityUnavailable
)

func (v Visibility) String() string {
	switch v {
	case VisibilityGranted:
		return "granted"
	case VisibilityDenied:
		return "denied"
	default:
		return "unavailable"
	}
}

// Client performs impersonated lookups against the directory
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	metrics      *observability.Metrics
}

// NewClient creates a directory client. httpClient and metrics may be nil.
func NewClient(baseURL, serviceToken string, httpClient *http.Client, metrics *observability.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		httpClient:   httpClient,
		metrics:      metrics,
	}
}

// GroupMember reports whether the subject is a member of the group. The
// directory's membership endpoint 404s for non-members and 401s for
// subjects with no visibility at all; both read as Denied.
func (c *Client) GroupMember(ctx context.Context, subject string, groupID int64) (Visibility, error) {
	path := "/groups/" + strconv.FormatInt(groupID, 10) + "/member"
	return c.lookup(ctx, "group_member", subject, path)
}

// Project reports whether the subject can see the project at all. The
// directory enforces its own visibility rules; a 200 is access.
func (c *Client) Project(ctx context.Context, subject string, projectID int64) (Visibility, error) {
	path := "/projects/" + strconv.FormatInt(projectID, 10)
	return c.lookup(ctx, "project", subject, path)
}

func (c *Client) lookup(ctx context.Context, kind, subject, path string) (Visibility, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return VisibilityUnavailable, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("Sudo", subject)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(kind, VisibilityUnavailable, start)
		return VisibilityUnavailable, fmt.Errorf("directory unreachable: %w", err)
	}
	defer resp.Body.Close()

	var visibility Visibility
	switch {
	case resp.StatusCode == http.StatusOK:
		visibility = VisibilityGranted
	case resp.StatusCode >= 500:
		c.observe(kind, VisibilityUnavailable, start)
		return VisibilityUnavailable, fmt.Errorf("directory returned status %d", resp.StatusCode)
	default:
		visibility = VisibilityDenied
	}

	c.observe(kind, visibility, start)
	return visibility, nil
}

func (c *Client) observe(kind string, v Visibility, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.DirectoryLookupsTotal.WithLabelValues(kind, v.String()).Inc()
	c.metrics.DirectoryLookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
