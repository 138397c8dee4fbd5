package flow

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/switchboard-io/switchboard/internal/core"
	sbrouter "github.com/switchboard-io/switchboard/internal/router"
)

// routerHeaderMatchConfig is one decoded header match of a router rule.
type routerHeaderMatchConfig struct {
	Name  string
	Exact string
	Regex string
}

type routerQueryMatchConfig struct {
	Name  string
	Exact string
	Regex string
}

type routerRuleConfig struct {
	Method  string
	Headers []routerHeaderMatchConfig
	Queries []routerQueryMatchConfig
	Output  string
}

type routerPathConfig struct {
	Trie    string
	Regex   string
	Names   []string
	Fallback bool
	Rules   []routerRuleConfig
}

type routerHostConfig struct {
	Pattern string
	Paths   []routerPathConfig
}

type routerNodeConfig struct {
	Hosts []routerHostConfig
}

type routerNode struct {
	router *sbrouter.Router
}

func newRouterNode(inst core.InstanceData, _ *Flow) (Node, error) {
	var cfg routerNodeConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding router config: %w", err)
	}

	r := sbrouter.New()
	for _, host := range cfg.Hosts {
		pathTree := r.Host(host.Pattern)
		for _, path := range host.Paths {
			var bucket *sbrouter.RuleBucket
			switch {
			case path.Fallback:
				bucket = pathTree.Fallback()
			case path.Regex != "":
				re, err := regexp.Compile(path.Regex)
				if err != nil {
					return nil, fmt.Errorf("flow: router host %q: compiling regex %q: %w", host.Pattern, path.Regex, err)
				}
				bucket = pathTree.InsertRegex(re, path.Names)
			default:
				bucket = pathTree.InsertTrie(path.Trie)
			}

			for _, rule := range path.Rules {
				bucket.Add(decodeRuleMatch(rule), rule.Output)
			}
		}
	}

	return &routerNode{router: r}, nil
}

func decodeRuleMatch(cfg routerRuleConfig) sbrouter.RuleMatch {
	rule := sbrouter.RuleMatch{Method: cfg.Method}
	for _, h := range cfg.Headers {
		rule.Headers = append(rule.Headers, sbrouter.HeaderMatch{Name: h.Name, Value: matchValue(h.Exact, h.Regex)})
	}
	for _, q := range cfg.Queries {
		rule.Queries = append(rule.Queries, sbrouter.QueryMatch{Name: q.Name, Value: matchValue(q.Exact, q.Regex)})
	}
	return rule
}

func matchValue(exact, pattern string) sbrouter.MatchValue {
	if pattern != "" {
		return sbrouter.Regex(regexp.MustCompile(pattern))
	}
	return sbrouter.Exact(exact)
}

// Handle matches req's hostname/path/rule and dispatches to the bound
// output port, stashing path captures for downstream filters.
func (n *routerNode) Handle(ctx *Context, req *http.Request) (*http.Response, error) {
	matched, err := n.router.Match(req)
	if err != nil {
		return nil, err
	}

	port, ok := matched.Output.(string)
	if !ok {
		return nil, fmt.Errorf("flow: router matched non-string output %v", matched.Output)
	}

	req = WithCaptures(req, matched.Captures)
	return ctx.Call(req, port)
}
