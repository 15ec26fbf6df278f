package model

// EventView is the presentation-facing copy of an event handed to drivers and clients.
type EventView struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`  // "event" or "quest"
	Quest     string   `json:"quest"` // innermost quest running the event
	Text      string   `json:"text,omitempty"`
	Decisions []string `json:"decisions,omitempty"` // paired with Endings by position
	Endings   []string `json:"endings"`
	WaitMS    int64    `json:"wait_ms,omitempty"` // timed events resolve themselves after this
	Tutorial  bool     `json:"tutorial,omitempty"`
	Intensity float64  `json:"intensity,omitempty"`
}

// Decision returns the text shown for ending i, falling back to the label.
func (v *EventView) Decision(i int) string {
	if i >= 0 && i < len(v.Decisions) && v.Decisions[i] != "" {
		return v.Decisions[i]
	}
	if i >= 0 && i < len(v.Endings) {
		return v.Endings[i]
	}
	return ""
}

// Node visibility classes, relative to the wave holding the active pool.
const (
	VisibilityNearby  = "nearby"  // up to two waves behind the active wave
	VisibilityBorder  = "border"  // the wave right after the active one
	VisibilityFaraway = "faraway" // a capped sample of everything else
	VisibilityHidden  = "hidden"
)

// GraphView is a read-only projection of one quest layer for visualizers.
type GraphView struct {
	Quest      string  `json:"quest"`
	Depth      int     `json:"depth"` // index into Layers of the drawn quest
	Layers     []Layer `json:"layers"`
	Waves      int     `json:"waves"`
	ActiveWave int     `json:"active_wave"`
	Finished   bool    `json:"finished"`
	Entry      bool    `json:"entry"` // draw the lead-in to the start pool
	Nodes      []Node  `json:"nodes"`
	Edges      []Edge  `json:"edges"`
}

// Layer is one quest in the chain of active sub-quests.
type Layer struct {
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
	Active bool   `json:"active"` // this layer is the one drawn
}

// Node is one pool.
type Node struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Wave        int      `json:"wave"`
	Row         int      `json:"row"` // position inside its wave
	Events      []string `json:"events"`
	Active      bool     `json:"active"`
	ActiveCount int      `json:"active_count"`
	Pending     bool     `json:"pending"`
	Used        bool     `json:"used"`
	Terminal    bool     `json:"terminal"`
	Start       bool     `json:"start"`
	Visibility  string   `json:"visibility"`
}

// Edge is a declared connection between two pools.
type Edge struct {
	From    int  `json:"from"`
	To      int  `json:"to"`
	Used    bool `json:"used"`
	Starred bool `json:"starred"` // several events of From lead to To
}
