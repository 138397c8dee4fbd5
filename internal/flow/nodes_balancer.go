package flow

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync/atomic"

	"github.com/switchboard-io/switchboard/internal/core"
)

// balancerOutputConfig is one weighted output port on a balancer node.
type balancerOutputConfig struct {
	Port string
	Weight int
}

type balancerNodeConfig struct {
	Strategy string // "round-robin" | "random" | "ip-hash"
	Outputs []balancerOutputConfig
}

type balancerNode struct {
	strategy string
	outputs []balancerOutputConfig
	total int
	cumWeights []int

	// packed (position<<32 | indexIntoWeight)'s
	// "Round-robin keeps (current_position, index_into_weight)
	// atomically" note.
	state atomic.Uint64
}

func newBalancerNode(inst core.InstanceData, _ *Flow) (Node, error) {
	var cfg balancerNodeConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding balancer config: %w", err)
	}
	if len(cfg.Outputs) == 0 {
		return nil, fmt.Errorf("flow: balancer has no outputs configured")
	}

	n := &balancerNode{strategy: cfg.Strategy, outputs: cfg.Outputs}
	cum := 0
	for _, o := range cfg.Outputs {
		w := o.Weight
		if w <= 0 {
			w = 1
		}
		cum += w
		n.cumWeights = append(n.cumWeights, cum)
	}
	n.total = cum
	return n, nil
}

func (n *balancerNode) Handle(ctx *Context, req *http.Request) (*http.Response, error) {
	var port string
	switch n.strategy {
	case "random":
		port = n.outputs[n.pickByWeight(rand.Intn(n.total))].Port
	case "ip-hash":
		port = n.outputs[n.pickByWeight(int(n.hashPeer(req) % uint32(n.total)))].Port
	default:
		port = n.outputs[n.nextRoundRobin()].Port
	}
	return ctx.Call(req, port)
}

// pickByWeight finds the output whose cumulative-weight bucket contains
// target, binary-searching for >=256 outputs and scanning linearly
// otherwise.
func (n *balancerNode) pickByWeight(target int) int {
	if len(n.outputs) >= 256 {
		return sort.Search(len(n.cumWeights), func(i int) bool {
			return n.cumWeights[i] > target
		})
	}
	for i, w := range n.cumWeights {
		if target < w {
			return i
		}
	}
	return len(n.outputs) - 1
}

func (n *balancerNode) hashPeer(req *http.Request) uint32 {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return h.Sum32()
}

// nextRoundRobin advances the packed (position, indexIntoWeight) counter
// via compare-and-swap and returns the output index to use.
func (n *balancerNode) nextRoundRobin() int {
	for {
		old := n.state.Load()
		position := int(old >> 32)
		index := int(old & 0xffffffff)

		weight := n.outputs[position].Weight
		if weight <= 0 {
			weight = 1
		}

		nextIndex := index + 1
		nextPosition := position
		if nextIndex >= weight {
			nextIndex = 0
			nextPosition = (position + 1) % len(n.outputs)
		}

		newState := (uint64(nextPosition) << 32) | uint64(nextIndex)
		if n.state.CompareAndSwap(old, newState) {
			return position
		}
	}
}
