// Package git resolves which GitHub repository a local checkout belongs to.
package git

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// DefaultRemote is the remote consulted when none is named.
const DefaultRemote = "origin"

// Client defines the git queries needed to locate a checkout's repository.
type Client interface {
	RepoRoot(path string) (string, error)
	RemoteURL(path, remote string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) RemoteURL(path, remote string) (string, error) {
	if remote == "" {
		remote = DefaultRemote
	}
	return gitCmd(path, "remote", "get-url", remote)
}

// DetectRepo returns "owner/name" for the checkout containing path, read
// from its default remote.
func DetectRepo(c Client, path string) (string, error) {
	root, err := c.RepoRoot(path)
	if err != nil {
		return "", fmt.Errorf("not a git checkout: %w", err)
	}
	remote, err := c.RemoteURL(root, DefaultRemote)
	if err != nil {
		return "", fmt.Errorf("read %s remote: %w", DefaultRemote, err)
	}
	owner, repo, err := ExtractOwnerRepo(remote)
	if err != nil {
		return "", err
	}
	return owner + "/" + repo, nil
}

// ExtractOwnerRepo parses a remote URL and returns owner and repo. SCP-style
// SSH (git@host:owner/repo.git), ssh:// and http(s):// forms are accepted
// for any host, so enterprise remotes resolve too.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	remoteURL = strings.TrimSpace(remoteURL)

	var path string
	switch {
	case strings.Contains(remoteURL, "://"):
		u, perr := url.Parse(remoteURL)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("cannot parse remote URL: %s", remoteURL)
		}
		path = u.Path
	case strings.Contains(remoteURL, ":"):
		// git@github.com:owner/repo.git
		_, p, _ := strings.Cut(remoteURL, ":")
		path = p
	default:
		return "", "", fmt.Errorf("cannot parse remote URL: %s", remoteURL)
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	segments := strings.Split(path, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[0], segments[1], nil
}
