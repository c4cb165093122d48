package harvest

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSearchURL(t *testing.T) {
	t.Parallel()

	got := BuildSearchURL("http://localhost:8888/search", "golang resume filetype:pdf")
	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "/search", u.Path)

	q := u.Query()
	require.Equal(t, "golang resume filetype:pdf", q.Get("q"))
	require.Equal(t, "1", q.Get("category_general"))
	require.Equal(t, "en", q.Get("language"))
	require.Equal(t, "1", q.Get("safesearch"))
	require.Equal(t, "simple", q.Get("theme"))
}

func TestBuildSearchURLTrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	got := BuildSearchURL("http://localhost:8888/search/", "x")
	require.True(t, strings.HasPrefix(got, "http://localhost:8888/search?"), "got %q", got)
}
