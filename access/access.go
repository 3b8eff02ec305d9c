// Package access models the access-control collaborator: permission
// bitmasks and the network client that answers rights questions for a
// (resource-group, user) pair.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Permissions is a bitmask over the rights a user holds on a resource.
type Permissions int

const (
	// Read grants fetch access.
	Read Permissions = 1 << 0
	// Create grants insertion into a container.
	Create Permissions = 1 << 1
	// All grants everything; owners always hold it.
	All Permissions = -1
	// None grants nothing.
	None Permissions = 0
)

// Has reports whether p includes the wanted rights.
func (p Permissions) Has(want Permissions) bool {
	return p&want == want
}

// UnreachablePolicy decides what an unreachable collaborator means.
type UnreachablePolicy string

const (
	// PolicyDeny degrades to zero permissions when the collaborator
	// cannot be reached.
	PolicyDeny UnreachablePolicy = "deny"
	// PolicyFail surfaces the collaborator failure to the operation.
	PolicyFail UnreachablePolicy = "fail"
)

// ErrUnreachable marks a collaborator failure under PolicyFail.
var ErrUnreachable = errors.New("access-control collaborator unreachable")

// Decider answers access-control questions. Implementations are narrow
// so the core's tests can substitute deterministic fakes.
type Decider interface {
	// Permissions returns the rights user holds via resourceGroup.
	Permissions(ctx context.Context, resourceGroup, user string) (Permissions, error)
	// ResourceGroups returns the resource-group URLs user belongs to.
	ResourceGroups(ctx context.Context, user string) ([]string, error)
}

// Client is the HTTP implementation of Decider against the collaborator
// endpoints ac-permissions and ac-resource-groups.
type Client struct {
	baseURL string
	policy  UnreachablePolicy
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a collaborator client. baseURL is the collaborator
// root, e.g. "http://localhost:8090". A zero timeout selects the default
// of 10 seconds.
func NewClient(baseURL string, policy UnreachablePolicy, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyDeny
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		policy:  policy,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Permissions asks the collaborator for the rights bitmask. A non-200
// response or transport failure degrades to zero permissions under
// PolicyDeny and surfaces ErrUnreachable under PolicyFail.
func (c *Client) Permissions(ctx context.Context, resourceGroup, user string) (Permissions, error) {
	target := fmt.Sprintf("%s/ac-permissions?%s&%s",
		c.baseURL, url.QueryEscape(resourceGroup), url.QueryEscape(user))
	body, err := c.get(ctx, target)
	if err != nil {
		return None, c.degrade("permissions", err)
	}
	mask, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return None, c.degrade("permissions", fmt.Errorf("parse bitmask %q: %w", body, err))
	}
	return Permissions(mask), nil
}

// ResourceGroups asks the collaborator for the user's resource groups,
// returned as a JSON array of URL strings.
func (c *Client) ResourceGroups(ctx context.Context, user string) ([]string, error) {
	target := fmt.Sprintf("%s/ac-resource-groups?%s", c.baseURL, url.QueryEscape(user))
	body, err := c.get(ctx, target)
	if err != nil {
		if degraded := c.degrade("resource-groups", err); degraded != nil {
			return nil, degraded
		}
		return nil, nil
	}
	return parseGroupList(body)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *Client) degrade(operation string, err error) error {
	if c.policy == PolicyFail {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, operation, err)
	}
	c.logger.Warn("access collaborator degraded to zero permissions", "operation", operation, "error", err)
	return nil
}

// parseGroupList accepts the collaborator's group list: a JSON array
// whose elements are either plain URL strings or rdf/json URI values.
func parseGroupList(body []byte) ([]string, error) {
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse resource-group list: %w", err)
	}
	groups := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			groups = append(groups, v)
		case map[string]any:
			if uri, ok := v["value"].(string); ok {
				groups = append(groups, uri)
			}
		}
	}
	return groups, nil
}

// Static is a deterministic Decider for tests and trusted callers: a
// fixed rights table keyed by "group|user" and fixed group memberships.
type Static struct {
	Rights map[string]Permissions
	Groups map[string][]string
}

// Permissions implements Decider.
func (s *Static) Permissions(_ context.Context, resourceGroup, user string) (Permissions, error) {
	return s.Rights[resourceGroup+"|"+user], nil
}

// ResourceGroups implements Decider.
func (s *Static) ResourceGroups(_ context.Context, user string) ([]string, error) {
	return s.Groups[user], nil
}
