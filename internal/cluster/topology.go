package cluster

import (
	"slices"

	"indexq/internal/ports"
)

var _ ports.Topology = (*Static)(nil)

// Static is a topology fixed at startup from configuration.
type Static struct {
	node   string
	nodes  []string
	shared bool
}

// NewStatic builds the topology for node. nodes lists the enabled node names;
// when empty the cluster is just this node.
func NewStatic(node string, nodes []string, sharedStorage bool) *Static {
	list := make([]string, 0, len(nodes)+1)
	for _, n := range nodes {
		if n != "" && !slices.Contains(list, n) {
			list = append(list, n)
		}
	}
	if len(list) == 0 {
		list = append(list, node)
	}
	return &Static{node: node, nodes: list, shared: sharedStorage}
}

func (s *Static) NodeName() string { return s.node }

func (s *Static) EnabledNodeNames() []string { return slices.Clone(s.nodes) }

func (s *Static) IsPartitioned() bool { return !s.shared && len(s.nodes) > 1 }

// SharedStorage reports whether the nodes share one index and therefore
// must serialize queue draining through a lock.
func (s *Static) SharedStorage() bool { return s.shared && len(s.nodes) > 1 }
