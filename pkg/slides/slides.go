// Package slides defines the dashboard export model: dashboards, graphs and the
// ordered slides enumerated from them
package slides

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the title slide from graph slides
type Kind string

const (
	KindTitle Kind = "title"
	KindGraph Kind = "graph"
)

// GraphType selects how a graph is charted
type GraphType string

const (
	GraphBar  GraphType = "bar"
	GraphLine GraphType = "line"
)

// Series is one named run of values, one value per graph label
type Series struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

// Graph is the graph descriptor a dashboard hands to the export pipeline
type Graph struct {
	ID     string    `json:"id" yaml:"id"`
	Title  string    `json:"title" yaml:"title"`
	Type   GraphType `json:"type" yaml:"type"`
	Labels []string  `json:"labels" yaml:"labels"`
	Series []Series  `json:"series" yaml:"series"`
}

// Dashboard is the export input: a name and its graphs in display order
type Dashboard struct {
	Name   string  `json:"name" yaml:"name"`
	Graphs []Graph `json:"graphs" yaml:"graphs"`
}

// Slide is one page of the exported document.
// Title slides carry Text, graph slides carry Graph.
type Slide struct {
	Index int
	Kind  Kind
	Text  string
	Graph *Graph
}

// Label names the slide for logs and page bookkeeping
func (s Slide) Label() string {
	if s.Kind == KindTitle {
		return "title"
	}
	if s.Graph.ID != "" {
		return s.Graph.ID
	}
	return fmt.Sprintf("graph-%d", s.Index)
}

var (
	ErrNoLabels       = errors.New("graph has no labels")
	ErrNoSeries       = errors.New("graph has no series")
	ErrSeriesMismatch = errors.New("series length does not match labels")
	ErrUnknownType    = errors.New("unknown graph type")
)

// Validate checks that the graph can be charted
func (g Graph) Validate() error {
	switch g.Type {
	case "", GraphBar, GraphLine:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, g.Type)
	}
	if len(g.Labels) == 0 {
		return ErrNoLabels
	}
	if len(g.Series) == 0 {
		return ErrNoSeries
	}
	for _, s := range g.Series {
		if len(s.Values) != len(g.Labels) {
			return fmt.Errorf("%w: series %q has %d values for %d labels", ErrSeriesMismatch, s.Name, len(s.Values), len(g.Labels))
		}
	}
	return nil
}

// Validate checks every graph of the dashboard
func (d Dashboard) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("dashboard name is required")
	}
	for i, g := range d.Graphs {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("graph %d (%s): %w", i+1, g.ID, err)
		}
	}
	return nil
}

// Enumerate returns the title slide followed by one slide per graph, in input order
func Enumerate(d Dashboard) []Slide {
	out := make([]Slide, 0, len(d.Graphs)+1)
	out = append(out, Slide{Index: 0, Kind: KindTitle, Text: d.Name})
	for i := range d.Graphs {
		g := d.Graphs[i]
		out = append(out, Slide{Index: i + 1, Kind: KindGraph, Graph: &g})
	}
	return out
}
