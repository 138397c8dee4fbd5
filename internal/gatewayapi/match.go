package gatewayapi

import (
	"regexp"

	gwv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"
)

// Gateway API's path/query/header match types don't carry native regex
// vs. literal distinctions the way this project's router package does;
// instead of synthesizing matchit-style trie patterns for PathPrefix and
// PathExact (which would need escaping rules the trie grammar has no
// native support for), every HTTPPathMatch is lowered to a regular
// expression route on the path tree. Exact anchors both ends, Prefix
// anchors only the start, RegularExpression passes the user's pattern
// through unchanged. This keeps the translator's output correct without
// teaching the router package a new match kind, at the cost of the
// trie's fast path never being exercised by Gateway API-sourced routes.

func pathMatchRegex(match *gwv1alpha2.HTTPPathMatch) string {
	if match == nil || match.Value == nil {
		return "^/.*$"
	}
	value := *match.Value
	matchType := gwv1alpha2.PathMatchPathPrefix
	if match.Type != nil {
		matchType = *match.Type
	}
	switch matchType {
	case gwv1alpha2.PathMatchExact:
		return "^" + regexp.QuoteMeta(value) + "$"
	case gwv1alpha2.PathMatchRegularExpression:
		return value
	default: // PathMatchPathPrefix
		return "^" + regexp.QuoteMeta(trimTrailingSlash(value)) + "(/.*)?$"
	}
}

func trimTrailingSlash(s string) string {
	if len(s) > 1 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

func httpMethodString(m *gwv1alpha2.HTTPMethod) string {
	if m == nil {
		return ""
	}
	return string(*m)
}

func headerMatchValue(h gwv1alpha2.HTTPHeaderMatch) (exact, regex string) {
	matchType := gwv1alpha2.HeaderMatchExact
	if h.Type != nil {
		matchType = *h.Type
	}
	if matchType == gwv1alpha2.HeaderMatchRegularExpression {
		return "", h.Value
	}
	return h.Value, ""
}

func queryMatchValue(q gwv1alpha2.HTTPQueryParamMatch) (exact, regex string) {
	matchType := gwv1alpha2.QueryParamMatchExact
	if q.Type != nil {
		matchType = *q.Type
	}
	if matchType == gwv1alpha2.QueryParamMatchRegularExpression {
		return "", q.Value
	}
	return q.Value, ""
}
