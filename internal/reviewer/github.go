package reviewer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v71/github"
	"golang.org/x/time/rate"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

// GitHubConfig configures a GitHubPermissions source.
type GitHubConfig struct {
	APIURL    string        // defaults to DefaultAPIURL
	Timeout   time.Duration // per request, defaults to 30s
	RateLimit float64       // requests per second, <= 0 disables throttling
}

// GitHubPermissions queries the collaborator-permission endpoint with go-github.
type GitHubPermissions struct {
	client  *github.Client
	limiter *rate.Limiter
}

// NewGitHubPermissions creates a permission source for the configured host.
func NewGitHubPermissions(cfg GitHubConfig) (*GitHubPermissions, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := github.NewClient(&http.Client{Timeout: timeout})

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	client.BaseURL = base

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &GitHubPermissions{client: client, limiter: limiter}, nil
}

// CollaboratorPermission implements PermissionSource.
func (g *GitHubPermissions) CollaboratorPermission(ctx context.Context, credential, owner, repo, login string) Lookup {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return TransportError(fmt.Errorf("rate limiter: %w", err))
		}
	}

	client := g.client
	if credential != "" {
		client = client.WithAuthToken(credential)
	}

	level, resp, err := client.Repositories.GetPermissionLevel(ctx, owner, repo, login)
	if err != nil {
		return classifyFailure(resp, err)
	}
	if level == nil || level.Permission == nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		return UnexpectedStatus(code, fmt.Errorf("permission missing from response"))
	}
	return Granted(level.GetPermission(), level.GetUser().GetLogin())
}

// classifyFailure maps a go-github error to a tagged lookup.
func classifyFailure(resp *github.Response, err error) Lookup {
	if resp == nil || resp.Response == nil {
		return TransportError(err)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return NotFound()
	case code < 200 || code >= 300:
		return UnexpectedStatus(code, err)
	default:
		// 2xx with an error means the body could not be decoded.
		return TransportError(err)
	}
}
