// Package layout projects a quest into a read-only graph view for visualizers.
package layout

import (
	"slices"

	"questgraph/pkg/model"
	"questgraph/pkg/quest"
)

const (
	// nearbyWaves is how many waves behind the active one are drawn as nearby.
	nearbyWaves = 2
	// entryWaves bounds how far the active wave may be from the start for the
	// lead-in to be drawn.
	entryWaves = 3
)

// Options tune the faraway sample.
type Options struct {
	// Selector drives the faraway sample; nil uses a fixed seed so repeated
	// builds show the same pools.
	Selector quest.Selector
	// FarawayCap limits how many faraway pools are shown.
	FarawayCap int
	// ShowChance is the percentage of faraway pools considered for showing.
	ShowChance int
}

// DefaultOptions shows up to three faraway pools, each with a 30% chance.
func DefaultOptions() Options {
	return Options{FarawayCap: 3, ShowChance: 30}
}

// Build projects the quest layer at depth, where depth indexes q.Layers() and
// -1 (or anything out of range) picks the innermost active layer. It recomputes
// pool waves on the drawn quest.
func Build(q *quest.Quest, depth int, opts Options) model.GraphView {
	layers := q.Layers()
	if depth < 0 || depth >= len(layers) {
		depth = len(layers) - 1
	}
	drawn := layers[depth]

	view := model.GraphView{
		Quest:    drawn.Name,
		Depth:    depth,
		Finished: drawn.IsFinished(),
	}
	for i, l := range layers {
		view.Layers = append(view.Layers, model.Layer{Name: l.Name, Depth: i, Active: i == depth})
	}

	view.Waves = drawn.ComputeWaves()
	view.ActiveWave = activeWave(drawn, view.Waves)
	view.Entry = view.ActiveWave >= 0 && view.ActiveWave < entryWaves

	view.Nodes = nodes(drawn, view.ActiveWave, opts)
	view.Edges = edges(drawn, view.ActiveWave)
	return view
}

// activeWave is the furthest wave holding an active pool, or waves when none is active.
func activeWave(q *quest.Quest, waves int) int {
	w := -1
	for _, id := range q.ActivePools() {
		w = max(w, q.Pool(id).Wave())
	}
	if w < 0 {
		return waves
	}
	return w
}

func nodes(q *quest.Quest, active int, opts Options) []model.Node {
	sel := opts.Selector
	if sel == nil {
		sel = quest.NewSeededSelector(0)
	}

	rows := make(map[int]int)
	faraway := 0
	out := make([]model.Node, 0, len(q.Pools()))

	for _, p := range q.Pools() {
		n := model.Node{
			ID:          int(p.ID()),
			Name:        p.Name,
			Wave:        p.Wave(),
			Row:         -1,
			Active:      p.IsActive(),
			ActiveCount: p.ActiveCount(),
			Pending:     q.IsPending(p.ID()),
			Used:        p.EverUsed(),
			Terminal:    p.IsTerminal(),
			Start:       p.ID() == q.Start(),
		}
		for _, e := range p.Events {
			n.Events = append(n.Events, e.Name)
		}
		if n.Wave >= 0 {
			n.Row = rows[n.Wave]
			rows[n.Wave]++
		}

		dist := active - n.Wave
		switch {
		case n.Wave < 0:
			n.Visibility = model.VisibilityHidden
		case dist >= 0 && dist <= nearbyWaves:
			n.Visibility = model.VisibilityNearby
		case dist == -1:
			n.Visibility = model.VisibilityBorder
		case faraway < opts.FarawayCap && sel.IntN(100) < opts.ShowChance:
			n.Visibility = model.VisibilityFaraway
			faraway++
		default:
			n.Visibility = model.VisibilityHidden
		}
		out = append(out, n)
	}
	return out
}

// edges lists each connected pool pair once, in authoring order. Edges leaving
// pools beyond the active wave are left out.
func edges(q *quest.Quest, active int) []model.Edge {
	var out []model.Edge
	for _, p := range q.Pools() {
		if p.Wave() < 0 || active-p.Wave() < 0 {
			continue
		}
		var seen []quest.PoolID
		first := len(out)
		for _, e := range p.Events {
			for _, dest := range e.EndingPools {
				if i := slices.Index(seen, dest); i >= 0 {
					out[first+i].Starred = true
					continue
				}
				seen = append(seen, dest)
				out = append(out, model.Edge{
					From: int(p.ID()),
					To:   int(dest),
					Used: p.EdgeUsed(dest),
				})
			}
		}
	}
	return out
}
