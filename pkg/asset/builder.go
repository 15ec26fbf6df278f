package asset

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"questgraph/pkg/quest"
)

type entry struct {
	key  string
	node *yaml.Node
}

// orderedMap returns a mapping node's pairs in document order.
func orderedMap(n *yaml.Node, what string) ([]entry, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s must be a mapping (line %d)", what, n.Line)
	}
	out := make([]entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if k.Kind != yaml.ScalarNode || k.Value == "" {
			return nil, fmt.Errorf("%s has an empty key (line %d)", what, k.Line)
		}
		out = append(out, entry{key: k.Value, node: n.Content[i+1]})
	}
	return out, nil
}

type builder struct {
	opts Options
	// stack holds the keys of the quest documents being built.
	stack []string
}

// scope chains the quests maps visible from a document, innermost first.
type scope struct {
	quests map[string]questDoc
	parent *scope
}

func (s *scope) lookup(name string) (questDoc, bool) {
	for c := s; c != nil; c = c.parent {
		if d, ok := c.quests[name]; ok {
			return d, true
		}
	}
	return questDoc{}, false
}

// quest builds doc, known as key. endingPools binds its endings into the
// parent quest when nested.
func (b *builder) quest(key string, doc *questDoc, parent *scope, endingPools []quest.PoolID) (*quest.Quest, error) {
	if slices.Contains(b.stack, key) {
		return nil, b.errf("quest %q nests itself", key)
	}
	b.stack = append(b.stack, key)
	defer func() { b.stack = b.stack[:len(b.stack)-1] }()

	sc := &scope{quests: doc.Quests, parent: parent}

	poolEntries, err := orderedMap(&doc.Pools, "pools")
	if err != nil {
		return nil, b.wrap(err)
	}
	if len(poolEntries) == 0 {
		return nil, b.errf("no pools")
	}
	ids := make(map[string]quest.PoolID, len(poolEntries))
	for i, pe := range poolEntries {
		if _, dup := ids[pe.key]; dup {
			return nil, b.errf("pool %q defined twice", pe.key)
		}
		ids[pe.key] = quest.PoolID(i)
	}

	start := quest.PoolID(0)
	if doc.Start != "" {
		id, ok := ids[doc.Start]
		if !ok {
			return nil, b.errf("start pool %q is not defined", doc.Start)
		}
		start = id
	}

	pools := make([]*quest.Pool, 0, len(poolEntries))
	for _, pe := range poolEntries {
		var refs []string
		if err := pe.node.Decode(&refs); err != nil {
			return nil, b.errf("pool %q: events must be a list of names: %v", pe.key, err)
		}
		events := make([]*quest.Event, 0, len(refs))
		for _, ref := range refs {
			e, err := b.event(doc, sc, ids, ref)
			if errors.Is(err, ErrInvalidAsset) {
				return nil, err
			}
			if err != nil {
				return nil, b.errf("pool %q: %w", pe.key, err)
			}
			events = append(events, e)
		}
		pools = append(pools, quest.NewPool(pe.key, events...))
	}

	opts := []quest.Option{
		quest.WithSelector(b.opts.Selector),
		quest.WithLogger(b.opts.Logger),
	}
	if endingPools != nil {
		opts = append(opts, quest.WithEndingPools(endingPools...))
	}
	q, err := quest.New(doc.Name, start, pools, doc.Endings, opts...)
	if err != nil {
		return nil, b.errf("%w", err)
	}
	q.Content.Text = doc.Text
	return q, nil
}

// event builds a fresh event for one reference in a pool.
func (b *builder) event(doc *questDoc, sc *scope, ids map[string]quest.PoolID, name string) (*quest.Event, error) {
	ed, ok := doc.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %q is not defined", name)
	}

	endings, err := orderedMap(&ed.Endings, "endings")
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", name, err)
	}
	resolve := func(pool string) (quest.PoolID, error) {
		id, ok := ids[pool]
		if !ok {
			return quest.NoPool, fmt.Errorf("event %q: pool %q is not defined", name, pool)
		}
		return id, nil
	}
	target := func(en entry) (string, error) {
		var pool string
		if err := en.node.Decode(&pool); err != nil {
			return "", fmt.Errorf("event %q: ending %q must name a pool", name, en.key)
		}
		return pool, nil
	}

	if ed.Quest != "" {
		return b.nested(sc, name, ed, endings, resolve, target)
	}

	var e *quest.Event
	switch {
	case len(endings) > 0:
		e = quest.NewEvent(name)
		for _, en := range endings {
			pool, err := target(en)
			if err != nil {
				return nil, err
			}
			dest, err := resolve(pool)
			if err != nil {
				return nil, err
			}
			e.To(en.key, dest)
		}
		e.Wait = ed.Wait.Std()
	case ed.Next != "":
		dest, err := resolve(ed.Next)
		if err != nil {
			return nil, err
		}
		wait := ed.Wait.Std()
		if wait <= 0 {
			wait = b.opts.DefaultWait
		}
		e = quest.NewTimedEvent(name, wait, dest)
	default:
		return nil, fmt.Errorf("event %q: needs endings or next", name)
	}

	e.Intensity = ed.Intensity
	e.Content = quest.Content{Text: ed.Text, Decisions: ed.Decisions, Tutorial: ed.Tutorial}
	if len(e.Content.Decisions) > len(e.Endings) {
		return nil, fmt.Errorf("event %q: %d decisions for %d endings", name, len(e.Content.Decisions), len(e.Endings))
	}
	return e, nil
}

// nested builds the sub-quest behind a quest reference. Its endings are bound
// to outer pools through the reference's endings mapping, in the sub-quest's order.
func (b *builder) nested(sc *scope, name string, ed eventDoc, endings []entry,
	resolve func(string) (quest.PoolID, error), target func(entry) (string, error),
) (*quest.Event, error) {
	sub, ok := sc.lookup(ed.Quest)
	if !ok {
		return nil, fmt.Errorf("event %q: quest %q is not defined", name, ed.Quest)
	}
	if sub.Name == "" {
		sub.Name = name
	}

	bound := make(map[string]quest.PoolID, len(endings))
	for _, en := range endings {
		pool, err := target(en)
		if err != nil {
			return nil, err
		}
		dest, err := resolve(pool)
		if err != nil {
			return nil, err
		}
		bound[en.key] = dest
	}
	if len(bound) != len(sub.Endings) {
		return nil, fmt.Errorf("event %q: quest %q has endings %v, bound %d", name, ed.Quest, sub.Endings, len(bound))
	}
	dests := make([]quest.PoolID, len(sub.Endings))
	for i, label := range sub.Endings {
		d, ok := bound[label]
		if !ok {
			return nil, fmt.Errorf("event %q: quest ending %q is not bound to a pool", name, label)
		}
		dests[i] = d
	}

	q, err := b.quest(ed.Quest, &sub, sc, dests)
	if err != nil {
		return nil, err
	}
	q.Intensity = ed.Intensity
	if ed.Text != "" {
		q.Content.Text = ed.Text
	}
	q.Content.Tutorial = ed.Tutorial
	return &q.Event, nil
}

func (b *builder) errf(format string, args ...any) error {
	return b.wrap(fmt.Errorf(format, args...))
}

// wrap prefixes err with the quest path and marks it as an asset error.
func (b *builder) wrap(err error) error {
	return fmt.Errorf("%w: quest %q: %w", ErrInvalidAsset, strings.Join(b.stack, "/"), err)
}
