package router

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
)

// MatchValue is either an exact string or a compiled regex; exactly one is
// set.
type MatchValue struct {
	Exact string
	Regex *regexp.Regexp
}

func (v MatchValue) matches(s string) bool {
	if v.Regex != nil {
		return v.Regex.MatchString(s)
	}
	return v.Exact == s
}

// HeaderMatch requires request header Name to satisfy Value.
type HeaderMatch struct {
	Name string
	Value MatchValue
}

// QueryMatch requires query parameter Name to satisfy Value.
type QueryMatch struct {
	Name string
	Value MatchValue
}

// RuleMatch is one routing rule within a bucket: an optional method
// constraint plus header and query constraints, all of which must hold for
// the rule to fire. A rule with no constraints at all is the bucket's
// fallback.
type RuleMatch struct {
	Method string
	Headers []HeaderMatch
	Queries []QueryMatch
}

func (r RuleMatch) isEmpty() bool {
	return r.Method == "" && len(r.Headers) == 0 && len(r.Queries) == 0
}

// priority packs (has-method, header count, query count) into a single
// integer so the most specific rule sorts first.
func (r RuleMatch) priority() int {
	p := 0
	if r.Method != "" {
		p |= 1 << 20
	}
	p |= (len(r.Headers) & 0x3ff) << 10
	p |= len(r.Queries) & 0x3ff
	return p
}

func (r RuleMatch) matchesRequest(method string, header http.Header, query url.Values) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	for _, h := range r.Headers {
		if !h.Value.matches(header.Get(h.Name)) {
			return false
		}
	}
	for _, q := range r.Queries {
		if !q.Value.matches(query.Get(q.Name)) {
			return false
		}
	}
	return true
}

type ruleEntry struct {
	rule RuleMatch
	output interface{}
	order int
}

// RuleBucket holds the ordered rules attached to one path-tree leaf.
type RuleBucket struct {
	entries []ruleEntry
	seq int
}

func newRuleBucket() *RuleBucket {
	return &RuleBucket{}
}

// Add registers rule with its associated output, re-sorting the bucket so
// the most specific rule is tried first. Empty rules always sort last.
func (b *RuleBucket) Add(rule RuleMatch, output interface{}) {
	b.entries = append(b.entries, ruleEntry{rule: rule, output: output, order: b.seq})
	b.seq++
	sort.SliceStable(b.entries, func(i, j int) bool {
		pi, pj := b.entries[i].rule.priority(), b.entries[j].rule.priority()
		if pi != pj {
			return pi > pj
		}
		return b.entries[i].order < b.entries[j].order
	})
}

// Match returns the first rule (in priority order) that matches the given
// request attributes.
func (b *RuleBucket) Match(method string, header http.Header, query url.Values) (RuleMatch, interface{}, bool) {
	for _, e := range b.entries {
		if e.rule.matchesRequest(method, header, query) {
			return e.rule, e.output, true
		}
	}
	return RuleMatch{}, nil, false
}
