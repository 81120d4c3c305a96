package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases scheme and host", in: "HTTP://Example.COM/Path", want: "http://example.com/Path"},
		{name: "strips default http port", in: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "strips default https port", in: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "keeps explicit port", in: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{name: "drops fragment", in: "https://example.com/a#section-2", want: "https://example.com/a"},
		{name: "drops tracking params", in: "https://example.com/a?utm_source=x&utm_medium=y&id=7", want: "https://example.com/a?id=7"},
		{name: "drops click ids", in: "https://example.com/a?gclid=123&fbclid=456", want: "https://example.com/a"},
		{name: "sorts query params", in: "https://example.com/a?b=2&a=1", want: "https://example.com/a?a=1&b=2"},
		{name: "empty path becomes root", in: "https://example.com", want: "https://example.com/"},
		{name: "trims trailing slash", in: "https://example.com/a/b/", want: "https://example.com/a/b"},
		{name: "root slash preserved", in: "https://example.com/", want: "https://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeURL(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeURLRejectsUnusable(t *testing.T) {
	for _, in := range []string{
		"ftp://example.com/file",
		"mailto:someone@example.com",
		"javascript:void(0)",
		"/relative/only",
		"",
	} {
		_, err := CanonicalizeURL(in)
		require.Error(t, err, "expected rejection for %q", in)
	}
}

func TestCanonicalAliasesCollapse(t *testing.T) {
	first, err := CanonicalizeURL("https://Example.com/a/?utm_source=news#frag")
	require.NoError(t, err)
	second, err := CanonicalizeURL("https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, second, first)
}

func TestHostOf(t *testing.T) {
	require.Equal(t, "example.com", hostOf("https://Example.COM:8443/x"))
	require.Equal(t, "", hostOf("://bad"))
}
