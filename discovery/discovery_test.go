package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrgURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Target
		wantErr bool
	}{
		{
			name: "org URL",
			url:  "https://github.com/my-org",
			want: Target{Org: "my-org"},
		},
		{
			name: "org URL with trailing slash",
			url:  "https://github.com/my-org/",
			want: Target{Org: "my-org"},
		},
		{
			name: "repo URL",
			url:  "https://github.com/my-org/my-repo",
			want: Target{Org: "my-org", Repo: "my-repo"},
		},
		{
			name: "repo URL with .git suffix",
			url:  "https://github.com/my-org/my-repo.git",
			want: Target{Org: "my-org", Repo: "my-repo"},
		},
		{
			name: "www host",
			url:  "https://www.github.com/my-org",
			want: Target{Org: "my-org"},
		},
		{
			name:    "non-github host",
			url:     "https://gitlab.com/my-org",
			wantErr: true,
		},
		{
			name:    "no path",
			url:     "https://github.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOrgURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	source := &SourceConfig{Org: "config-org"}

	t.Run("explicit org wins over URL and config", func(t *testing.T) {
		target, err := Resolve("explicit-org", "https://github.com/url-org", source)
		require.NoError(t, err)
		assert.Equal(t, "explicit-org", target.Org)
	})

	t.Run("URL-derived org wins over config", func(t *testing.T) {
		target, err := Resolve("", "https://github.com/url-org", source)
		require.NoError(t, err)
		assert.Equal(t, "url-org", target.Org)
	})

	t.Run("config org is the last resort", func(t *testing.T) {
		target, err := Resolve("", "", source)
		require.NoError(t, err)
		assert.Equal(t, "config-org", target.Org)
	})

	t.Run("nothing resolvable is a configuration error", func(t *testing.T) {
		_, err := Resolve("", "", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not determine organization")
	})
}

func TestFilterExcluded(t *testing.T) {
	names := []string{"service-a", "eval", "service-b"}

	filtered := FilterExcluded(names, []string{"eval"})
	assert.Equal(t, []string{"service-a", "service-b"}, filtered)

	// Order is preserved and no-op excludes change nothing
	assert.Equal(t, names, FilterExcluded(names, nil))
	assert.Equal(t, names, FilterExcluded(names, []string{"absent"}))
}

func TestListRepositories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/orgs/my-org/repos", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"service-a"},{"name":"service-b"},{"name":"eval"}]`)
	}))
	defer srv.Close()

	c := NewClient("", log.New())
	require.NoError(t, c.SetBaseURL(srv.URL+"/api/v3/"))

	names, err := c.ListRepositories(context.Background(), "my-org")
	require.NoError(t, err)
	assert.Equal(t, []string{"service-a", "service-b", "eval"}, names)
}

func TestListRepositoriesPaginated(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"name":"page-two"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/orgs/my-org/repos?page=2>; rel="next"`, srv.URL))
		fmt.Fprint(w, `[{"name":"page-one"}]`)
	}))
	defer srv.Close()

	c := NewClient("", log.New())
	require.NoError(t, c.SetBaseURL(srv.URL+"/api/v3/"))

	names, err := c.ListRepositories(context.Background(), "my-org")
	require.NoError(t, err)
	assert.Equal(t, []string{"page-one", "page-two"}, names)
}

func TestListRepositoriesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("", log.New())
	require.NoError(t, c.SetBaseURL(srv.URL+"/api/v3/"))

	_, err := c.ListRepositories(context.Background(), "absent-org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent-org")
}
