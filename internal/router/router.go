// Package router implements the HTTP request router: a hostname tree,
// nested path trees, and per-path rule buckets. It is hand-built rather
// than pulled from an off-the-shelf HTTP router library because the
// three-level match semantics (hostname specificity, matchit-style trie
// with regex fallback, and priority-ordered method/header/query rule
// buckets) don't match what any common router library exposes as a
// public API.
package router

import (
	"net/http"
	"regexp"
)

// Matched is the result of a successful Router.Match call.
type Matched struct {
	Hostname string
	Captures map[string]string
	Rule RuleMatch
	Output interface{}
}

// Router is a hostname-tree-rooted HTTP request matcher. The zero value is
// not usable; construct with New.
type Router struct {
	hosts *hostTree
}

// New returns an empty Router.
func New() *Router {
	return &Router{hosts: newHostTree()}
}

// Host registers (or returns the existing) PathTree for a hostname
// pattern. Use "*" for a wildcard label, e.g. "*.example.com".
func (r *Router) Host(pattern string) *PathTree {
	return r.hosts.Insert(pattern)
}

// Match dispatches an *http.Request through the hostname tree, path tree,
// and rule bucket in turn. Host-port and IPv6 bracket stripping is
// applied to req.Host before hostname lookup.
func (r *Router) Match(req *http.Request) (*Matched, error) {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	host = StripHostPort(host)

	pathTree, ok := r.hosts.Lookup(host)
	if !ok {
		return nil, &HostNotFoundError{Host: host}
	}

	bucket, captures, ok := pathTree.Match(req.URL.Path)
	if !ok {
		return nil, &NoMatchRouteError{Host: host, Path: req.URL.Path}
	}

	query := req.URL.Query()
	rule, output, ok := bucket.Match(req.Method, req.Header, query)
	if !ok {
		return nil, &NoMatchRouteError{Host: host, Path: req.URL.Path}
	}

	return &Matched{Hostname: host, Captures: captures, Rule: rule, Output: output}, nil
}

// Exact builds an exact-match MatchValue.
func Exact(s string) MatchValue { return MatchValue{Exact: s} }

// Regex builds a regex-match MatchValue from a compiled pattern.
func Regex(re *regexp.Regexp) MatchValue { return MatchValue{Regex: re} }
