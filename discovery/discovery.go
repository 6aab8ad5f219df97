// Package discovery resolves which repositories a batch should test: it
// lists an organization's repositories through the GitHub API, or takes a
// pinned list from a source config file, and applies the exclusion rules.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/go-github/v69/github"
)

// perPage is the GitHub listing page size. Listing walks pages until the
// API reports no next page.
const perPage = 100

// Client lists the repositories of an organization.
type Client struct {
	gh  *github.Client
	log log.Logger
}

// NewClient creates a discovery client. The token is optional; public
// organizations list without one.
func NewClient(token string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.New()
	}
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, log: logger}
}

// SetBaseURL points the underlying GitHub client at a different API host.
func (c *Client) SetBaseURL(base string) error {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid API base URL %q: %w", base, err)
	}
	c.gh.BaseURL = u
	return nil
}

// ListRepositories returns the names of every repository in the
// organization, in the order the API yields them.
func (c *Client) ListRepositories(ctx context.Context, org string) ([]string, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var names []string
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for organization %q: %w", org, err)
		}
		for _, repo := range repos {
			names = append(names, repo.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.log.Info("Discovered repositories", "org", org, "count", len(names))
	return names, nil
}

// Target is the outcome of resolving an organization URL: the organization
// and, when the URL points at a single repository, that repository.
type Target struct {
	Org  string
	Repo string
}

// ParseOrgURL extracts the organization, and optionally a single
// repository, from a GitHub URL. Only github.com URLs are accepted.
func ParseOrgURL(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid organization URL %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return Target{}, fmt.Errorf("organization URL %q is not a github.com URL", rawURL)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Target{}, fmt.Errorf("organization URL %q has no organization path", rawURL)
	}

	target := Target{Org: segments[0]}
	if len(segments) > 1 && segments[1] != "" {
		target.Repo = strings.TrimSuffix(segments[1], ".git")
	}
	return target, nil
}

// Resolve determines the discovery target from the configured inputs. An
// explicit organization always wins over a URL-derived one; the source
// config organization is the last resort.
func Resolve(org, orgURL string, source *SourceConfig) (Target, error) {
	if org != "" {
		return Target{Org: org}, nil
	}
	if orgURL != "" {
		return ParseOrgURL(orgURL)
	}
	if source != nil && source.Org != "" {
		return Target{Org: source.Org}, nil
	}
	return Target{}, fmt.Errorf("could not determine organization: set --org or --org-url (or GITHUB_ORG / GITHUB_ORG_URL)")
}

// FilterExcluded drops the excluded names from the discovered sequence,
// preserving order. Filtering happens here, in the caller's layer; the
// orchestrator never sees exclusion rules.
func FilterExcluded(names, excludes []string) []string {
	if len(excludes) == 0 {
		return names
	}
	excluded := make(map[string]struct{}, len(excludes))
	for _, name := range excludes {
		excluded[name] = struct{}{}
	}
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if _, drop := excluded[name]; drop {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}
