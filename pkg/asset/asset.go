// Package asset loads quest graphs from YAML documents.
//
// A document names its pools in order (the first pool is PoolID 0), defines
// events by name, and may define nested quests that pools reference through
// events carrying a quest key:
//
//	name: wanderer
//	start: road
//	endings: [home]
//	pools:
//	  road: [crossroads]
//	  forest: [cave]
//	  home: []
//	events:
//	  crossroads:
//	    text: The road forks.
//	    decisions: [Take the left path, Follow the river]
//	    endings: {left: forest, right: road}
//	  cave:
//	    quest: cave
//	    endings: {out: home}
//	quests:
//	  cave: {...}
package asset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"questgraph/pkg/config"
	"questgraph/pkg/quest"
)

// ErrInvalidAsset wraps every authoring mistake found while building a quest.
var ErrInvalidAsset = errors.New("invalid quest asset")

// Options tune how a document becomes a quest.
type Options struct {
	Selector    quest.Selector
	Logger      *slog.Logger
	DefaultWait time.Duration // wait for timed events that do not set one
}

type questDoc struct {
	Name    string              `yaml:"name"`
	Start   string              `yaml:"start"`
	Endings []string            `yaml:"endings"`
	Text    string              `yaml:"text"`
	Pools   yaml.Node           `yaml:"pools"`
	Events  map[string]eventDoc `yaml:"events"`
	Quests  map[string]questDoc `yaml:"quests"`
}

type eventDoc struct {
	Text      string          `yaml:"text"`
	Decisions []string        `yaml:"decisions"`
	Endings   yaml.Node       `yaml:"endings"`
	Wait      config.Duration `yaml:"wait"`
	Next      string          `yaml:"next"`
	Tutorial  bool            `yaml:"tutorial"`
	Intensity float64         `yaml:"intensity"`
	Quest     string          `yaml:"quest"`
}

// Load reads and builds the quest at path. A document without a name is named
// after the file.
func Load(path string, opts Options) (*quest.Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	q, err := build(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// Parse builds a quest from YAML bytes.
func Parse(data []byte, opts Options) (*quest.Quest, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: quest has no name", ErrInvalidAsset)
	}
	return build(doc, opts)
}

func decode(data []byte) (*questDoc, error) {
	var doc questDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse asset: %w", err)
	}
	return &doc, nil
}

func build(doc *questDoc, opts Options) (*quest.Quest, error) {
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = quest.DefaultWait
	}
	b := &builder{opts: opts}
	return b.quest(doc.Name, doc, nil, nil)
}
