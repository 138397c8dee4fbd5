package router

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterHostNotFound(t *testing.T) {
	r := New()
	r.Host("api.example.com")

	req := httptest.NewRequest(http.MethodGet, "http://other.example.com/", nil)
	_, err := r.Match(req)

	var notFound *HostNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRouterWildcardHostPrefersLiteral(t *testing.T) {
	r := New()
	r.Host("api.example.com").InsertTrie("/").Add(RuleMatch{}, "literal")
	r.Host("*.example.com").InsertTrie("/").Add(RuleMatch{}, "wildcard")

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil)
	m, err := r.Match(req)
	require.NoError(t, err)
	require.Equal(t, "literal", m.Output)

	req2 := httptest.NewRequest(http.MethodGet, "http://other.example.com/", nil)
	m2, err := r.Match(req2)
	require.NoError(t, err)
	require.Equal(t, "wildcard", m2.Output)
}

func TestRouterStripsHostPort(t *testing.T) {
	r := New()
	r.Host("api.example.com").InsertTrie("/").Add(RuleMatch{}, "matched")

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com:8443/", nil)
	m, err := r.Match(req)
	require.NoError(t, err)
	require.Equal(t, "matched", m.Output)
}

// TestPathRouterAndHeaderRule exercises scenario 3.
func TestPathRouterAndHeaderRule(t *testing.T) {
	r := New()
	bucket := r.Host("api.example.com").InsertTrie("/v1/{*rest}")
	bucket.Add(RuleMatch{
		Method: http.MethodPost,
		Headers: []HeaderMatch{{Name: "X-Version", Value: Exact("v2")}},
		}, "out_A")
	bucket.Add(RuleMatch{}, "out_B")

	withHeader := httptest.NewRequest(http.MethodPost, "http://api.example.com/v1/items", nil)
	withHeader.Header.Set("X-Version", "v2")
	m, err := r.Match(withHeader)
	require.NoError(t, err)
	require.Equal(t, "out_A", m.Output)
	require.Equal(t, "items", m.Captures["rest"])

	withoutHeader := httptest.NewRequest(http.MethodPost, "http://api.example.com/v1/items", nil)
	m2, err := r.Match(withoutHeader)
	require.NoError(t, err)
	require.Equal(t, "out_B", m2.Output)

	getReq := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/items", nil)
	getReq.Header.Set("X-Version", "v2")
	m3, err := r.Match(getReq)
	require.NoError(t, err)
	require.Equal(t, "out_B", m3.Output)
}

// TestRouterPriorityMethodConstraintWins exercises rule priority: a rule
// with a method constraint outranks one without, all else equal.
func TestRouterPriorityMethodConstraintWins(t *testing.T) {
	bucket := newRuleBucket()
	bucket.Add(RuleMatch{}, "no-method")
	bucket.Add(RuleMatch{Method: http.MethodGet}, "has-method")

	rule, output, ok := bucket.Match(http.MethodGet, http.Header{}, nil)
	require.True(t, ok)
	require.Equal(t, "has-method", output)
	require.Equal(t, http.MethodGet, rule.Method)
}

func TestRuleBucketEmptyRuleAlwaysLast(t *testing.T) {
	bucket := newRuleBucket()
	bucket.Add(RuleMatch{}, "fallback")
	bucket.Add(RuleMatch{Headers: []HeaderMatch{{Name: "X-A", Value: Exact("1")}}}, "specific")

	require.Equal(t, "specific", bucket.entries[0].output)
	require.Equal(t, "fallback", bucket.entries[1].output)
}

func TestPathTreeTrieThenRegexThenFallback(t *testing.T) {
	tree := newPathTree()
	tree.InsertTrie("/static/home").Add(RuleMatch{}, "trie")
	tree.InsertRegex(regexp.MustCompile(`^/items/(\d+)$`), []string{"id"}).Add(RuleMatch{}, "regex")
	tree.Fallback().Add(RuleMatch{}, "fallback")

	bucket, _, ok := tree.Match("/static/home")
	require.True(t, ok)
	_, out, _ := bucket.Match(http.MethodGet, http.Header{}, nil)
	require.Equal(t, "trie", out)

	bucket, captures, ok := tree.Match("/items/42")
	require.True(t, ok)
	require.Equal(t, "42", captures["id"])
	_, out, _ = bucket.Match(http.MethodGet, http.Header{}, nil)
	require.Equal(t, "regex", out)

	bucket, _, ok = tree.Match("/nothing/here")
	require.True(t, ok)
	_, out, _ = bucket.Match(http.MethodGet, http.Header{}, nil)
	require.Equal(t, "fallback", out)
}

func TestRouterNoMatchRouteWhenHostMatchesButPathDoesNot(t *testing.T) {
	r := New()
	r.Host("api.example.com").InsertTrie("/v1").Add(RuleMatch{}, "ok")

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/v2", nil)
	_, err := r.Match(req)

	var noMatch *NoMatchRouteError
	require.ErrorAs(t, err, &noMatch)
}

func TestRegexMatchValue(t *testing.T) {
	v := Regex(regexp.MustCompile(`^v\d+$`))
	require.True(t, v.matches("v2"))
	require.False(t, v.matches("beta"))
}

func TestStripHostPortHandlesIPv6(t *testing.T) {
	require.Equal(t, "[::1]", StripHostPort("[::1]:8080"))
	require.Equal(t, "[::1]", StripHostPort("[::1]"))
	require.Equal(t, "example.com", StripHostPort("example.com:443"))
	require.Equal(t, "example.com", StripHostPort("example.com"))
}
