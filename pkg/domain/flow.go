package domain

// Flow is a rooted graph of nodes, triggered by customer intent.
type Flow struct {
	ID      string `json:"id" yaml:"id"`
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`

	// TriggerPhrases are matched (case-insensitively) against inbound
	// customer messages to select this flow.
	TriggerPhrases []string `json:"trigger_phrases,omitempty" yaml:"trigger_phrases,omitempty"`

	// Activations counts how many sessions this flow has started.
	Activations int64 `json:"activations" yaml:"activations"`

	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Node returns the node with the given ID, or false if it is not part of the
// flow. A session pointing at a node this returns false for must end.
func (f *Flow) Node(id string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Start returns the flow's entry node.
func (f *Flow) Start() (Node, bool) {
	for _, n := range f.Nodes {
		if n.Type == NodeTypeStart {
			return n, true
		}
	}
	return Node{}, false
}

// ChildOf returns the single downstream node of the given node. Branch nodes
// address their children explicitly and never resolve through here.
func (f *Flow) ChildOf(id string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.ParentID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Descendants returns the IDs of every node reachable below the given node,
// excluding the node itself. Deleting a node cascades to this set.
func (f *Flow) Descendants(id string) []string {
	var out []string
	frontier := []string{id}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, n := range f.Nodes {
			if n.ParentID == next {
				out = append(out, n.ID)
				frontier = append(frontier, n.ID)
			}
		}
	}
	return out
}

// Agent is the owning automation unit: a set of flows, tools and knowledge
// sources with an on/off switch. The engine only reads it; administration is
// an external collaborator.
type Agent struct {
	ID      string         `json:"id" yaml:"id"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}
