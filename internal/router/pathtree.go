package router

import (
	"regexp"
	"strings"
)

// PathTree matches a request path within one matched hostname. It tries,
// in order: the matchit-style trie, then registered regex routes in
// insertion order, then the fallback bucket.
type PathTree struct {
	trie *pathNode
	regexes []*regexRoute
	fallback *RuleBucket
}

type pathNode struct {
	literal map[string]*pathNode
	param *pathNode
	paramName string
	wildcard *pathNode
	wildcardName string
	bucket *RuleBucket
}

type regexRoute struct {
	pattern *regexp.Regexp
	names []string
	bucket *RuleBucket
}

func newPathTree() *PathTree {
	return &PathTree{trie: &pathNode{literal: map[string]*pathNode{}}}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// InsertTrie registers a matchit-style path pattern, e.g. "/v1/{id}" or
// "/v1/{*rest}", and returns its RuleBucket.
func (t *PathTree) InsertTrie(pattern string) *RuleBucket {
	segments := splitPath(pattern)
	node := t.trie
	for _, seg := range segments {
		switch {
		case strings.HasPrefix(seg, "{*") && strings.HasSuffix(seg, "}"):
			name := seg[2: len(seg)-1]
			if node.wildcard == nil {
				node.wildcard = &pathNode{literal: map[string]*pathNode{}}
			}
			node.wildcardName = name
			node = node.wildcard
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			name := seg[1: len(seg)-1]
			if node.param == nil {
				node.param = &pathNode{literal: map[string]*pathNode{}}
			}
			node.paramName = name
			node = node.param
		default:
			child, ok := node.literal[seg]
			if !ok {
				child = &pathNode{literal: map[string]*pathNode{}}
				node.literal[seg] = child
			}
			node = child
		}
	}
	if node.bucket == nil {
		node.bucket = newRuleBucket()
	}
	return node.bucket
}

// InsertRegex registers a regex path route, tried in insertion order after
// the trie misses. names supplies the capture-group names in order.
func (t *PathTree) InsertRegex(pattern *regexp.Regexp, names []string) *RuleBucket {
	bucket := newRuleBucket()
	t.regexes = append(t.regexes, &regexRoute{pattern: pattern, names: names, bucket: bucket})
	return bucket
}

// Fallback returns (creating if needed) the path-level fallback bucket,
// used when neither the trie nor any regex route matches.
func (t *PathTree) Fallback() *RuleBucket {
	if t.fallback == nil {
		t.fallback = newRuleBucket()
	}
	return t.fallback
}

// Match finds the bucket for path and the captures produced along the way.
func (t *PathTree) Match(path string) (*RuleBucket, map[string]string, bool) {
	segments := splitPath(path)

	captures := map[string]string{}
	if bucket, ok := matchPathNode(t.trie, segments, 0, captures); ok {
		return bucket, captures, true
	}

	for _, rx := range t.regexes {
		m := rx.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		caps := map[string]string{}
		for i, name := range rx.names {
			if name == "" || i+1 >= len(m) {
				continue
			}
			caps[name] = m[i+1]
		}
		return rx.bucket, caps, true
	}

	if t.fallback != nil {
		return t.fallback, map[string]string{}, true
	}
	return nil, nil, false
}

func matchPathNode(node *pathNode, segments []string, idx int, captures map[string]string) (*RuleBucket, bool) {
	if idx == len(segments) {
		if node.bucket != nil {
			return node.bucket, true
		}
		return nil, false
	}

	if child, ok := node.literal[segments[idx]]; ok {
		if bucket, ok := matchPathNode(child, segments, idx+1, captures); ok {
			return bucket, true
		}
	}
	if node.param != nil {
		captures[node.paramName] = segments[idx]
		if bucket, ok := matchPathNode(node.param, segments, idx+1, captures); ok {
			return bucket, true
		}
		delete(captures, node.paramName)
	}
	if node.wildcard != nil {
		captures[node.wildcardName] = strings.Join(segments[idx:], "/")
		if node.wildcard.bucket != nil {
			return node.wildcard.bucket, true
		}
		delete(captures, node.wildcardName)
	}
	return nil, false
}
