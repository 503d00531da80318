// Package processor mounts export slides: slide descriptor → decksh markup →
// deck XML → a laid-out slide that can be drawn as SVG or onto a raster canvas
package processor

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/ajstarks/deck"
	"github.com/ajstarks/decksh"

	"github.com/joeblew999/dashdeck/pkg/slides"
)

// Config holds rendering configuration
type Config struct {
	Width  int
	Height int
	// Font settings (for SVG, these are CSS font-family values)
	SansFont  string
	SerifFont string
	MonoFont  string
	// Slide colors
	Background string
	Foreground string
	// Theme is decksh markup placed on every slide, imports already expanded
	Theme []byte
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Width:      1920,
		Height:     1080,
		SansFont:   "Helvetica, Arial, sans-serif",
		SerifFont:  "Georgia, Times, serif",
		MonoFont:   "Monaco, Consolas, monospace",
		Background: "white",
		Foreground: "black",
	}
}

// Renderer mounts slides off-screen
type Renderer struct {
	cfg     Config
	fontmap map[string]string
}

// NewRenderer creates a renderer, filling zero config fields from DefaultConfig
func NewRenderer(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.SansFont == "" {
		cfg.SansFont = def.SansFont
	}
	if cfg.SerifFont == "" {
		cfg.SerifFont = def.SerifFont
	}
	if cfg.MonoFont == "" {
		cfg.MonoFont = def.MonoFont
	}
	if cfg.Background == "" {
		cfg.Background = def.Background
	}
	if cfg.Foreground == "" {
		cfg.Foreground = def.Foreground
	}
	return &Renderer{
		cfg: cfg,
		fontmap: map[string]string{
			"sans":  cfg.SansFont,
			"serif": cfg.SerifFont,
			"mono":  cfg.MonoFont,
		},
	}
}

// Config returns the effective configuration
func (r *Renderer) Config() Config {
	return r.cfg
}

// Handle is a mounted, fully laid-out slide
type Handle struct {
	Slide  slides.Slide
	Width  float64
	Height float64

	deck    *deck.Deck
	assets  map[string]asset
	fontmap map[string]string
}

// Layout returns the parsed deck slide
func (h *Handle) Layout() deck.Slide {
	return h.deck.Slide[0]
}

// Mount lays out one slide and renders its chart assets
func (r *Renderer) Mount(ctx context.Context, s slides.Slide) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assets := make(map[string]asset)
	var markup []byte

	switch s.Kind {
	case slides.KindTitle:
		markup = r.titleMarkup(s.Text)
	case slides.KindGraph:
		if s.Graph == nil {
			return nil, fmt.Errorf("graph slide %d has no graph", s.Index)
		}
		cw, ch := r.chartSize()
		a, err := renderChart(*s.Graph, cw, ch)
		if err != nil {
			return nil, fmt.Errorf("chart for slide %d: %w", s.Index, err)
		}
		name := chartAssetName(s.Index)
		assets[name] = a
		markup = r.graphMarkup(s, name)
	default:
		return nil, fmt.Errorf("unknown slide kind %q", s.Kind)
	}

	// Step 1: decksh → deck XML
	var deckXML bytes.Buffer
	if err := decksh.Process(&deckXML, bytes.NewReader(markup)); err != nil {
		return nil, fmt.Errorf("decksh processing failed: %w", err)
	}

	// Step 2: Parse deck XML
	d, err := parseDeck(deckXML.Bytes(), r.cfg.Width, r.cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("deck parsing failed: %w", err)
	}
	if len(d.Slide) != 1 {
		return nil, fmt.Errorf("slide %d produced %d deck slides", s.Index, len(d.Slide))
	}

	return &Handle{
		Slide:   s,
		Width:   float64(d.Canvas.Width),
		Height:  float64(d.Canvas.Height),
		deck:    d,
		assets:  assets,
		fontmap: r.fontmap,
	}, nil
}

// MountAll mounts every slide in order
func (r *Renderer) MountAll(ctx context.Context, list []slides.Slide) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(list))
	for _, s := range list {
		h, err := r.Mount(ctx, s)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// parseDeck parses deck XML into structure
func parseDeck(xmlData []byte, width, height int) (*deck.Deck, error) {
	var d deck.Deck
	if err := xml.Unmarshal(xmlData, &d); err != nil {
		return nil, err
	}

	// Set canvas dimensions if not specified
	if d.Canvas.Width == 0 {
		d.Canvas.Width = width
	}
	if d.Canvas.Height == 0 {
		d.Canvas.Height = height
	}

	return &d, nil
}
