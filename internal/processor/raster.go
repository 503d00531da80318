package processor

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontsOnce sync.Once
	fontsErr  error
	fonts     map[string]*truetype.Font
)

// loadFonts parses the embedded Go fonts used for raster text
func loadFonts() error {
	fontsOnce.Do(func() {
		fonts = make(map[string]*truetype.Font)
		for name, ttf := range map[string][]byte{
			"sans":  goregular.TTF,
			"serif": goregular.TTF,
			"bold":  gobold.TTF,
			"mono":  gomono.TTF,
		} {
			f, err := truetype.Parse(ttf)
			if err != nil {
				fontsErr = fmt.Errorf("parse %s font: %w", name, err)
				return
			}
			fonts[name] = f
		}
	})
	return fontsErr
}

type faceKey struct {
	font string
	size float64
}

// rasterPainter draws onto a gg context
type rasterPainter struct {
	dc     *gg.Context
	assets map[string]asset
	faces  map[faceKey]font.Face
}

func (p *rasterPainter) face(name string, size float64) font.Face {
	if _, ok := fonts[name]; !ok {
		name = "sans"
	}
	k := faceKey{name, size}
	if f, ok := p.faces[k]; ok {
		return f
	}
	f := truetype.NewFace(fonts[name], &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	p.faces[k] = f
	return f
}

func (p *rasterPainter) setColor(c string, opacity float64) {
	rgba := parseColor(c)
	rgba.A = uint8(float64(rgba.A) * setop(opacity))
	p.dc.SetColor(rgba)
}

func (p *rasterPainter) rect(x, y, w, h float64, color string, opacity float64) {
	p.setColor(color, opacity)
	p.dc.DrawRectangle(x, y, w, h)
	p.dc.Fill()
}

func (p *rasterPainter) ellipse(cx, cy, rx, ry float64, color string, opacity float64) {
	p.setColor(color, opacity)
	p.dc.DrawEllipse(cx, cy, rx, ry)
	p.dc.Fill()
}

func (p *rasterPainter) line(x1, y1, x2, y2, sw float64, color string, opacity float64) {
	p.setColor(color, opacity)
	p.dc.SetLineWidth(sw)
	p.dc.DrawLine(x1, y1, x2, y2)
	p.dc.Stroke()
}

func (p *rasterPainter) polygon(xs, ys []float64, color string, opacity float64) {
	p.setColor(color, opacity)
	p.dc.MoveTo(xs[0], ys[0])
	for i := 1; i < len(xs); i++ {
		p.dc.LineTo(xs[i], ys[i])
	}
	p.dc.ClosePath()
	p.dc.Fill()
}

func (p *rasterPainter) text(x, y float64, s string, size float64, font, color, align string, opacity float64) {
	if size <= 0 || s == "" {
		return
	}
	p.dc.SetFontFace(p.face(font, size))
	p.setColor(color, opacity)
	var ax float64
	switch textalign(align) {
	case "middle":
		ax = 0.5
	case "end":
		ax = 1
	}
	p.dc.DrawStringAnchored(s, x, y, ax, 0)
}

// image draws a mounted asset scaled into the box; unknown names are skipped
func (p *rasterPainter) image(x, y, w, h float64, name string) {
	a, ok := p.assets[name]
	if !ok || w <= 0 || h <= 0 {
		return
	}
	b := a.img.Bounds()
	p.dc.Push()
	p.dc.Translate(x, y)
	p.dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
	p.dc.DrawImage(a.img, 0, 0)
	p.dc.Pop()
}

// Raster draws the slide into an RGBA image at scale times the canvas size
func (h *Handle) Raster(scale float64) (*image.RGBA, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}
	w := int(h.Width * scale)
	ht := int(h.Height * scale)
	if w <= 0 || ht <= 0 {
		return nil, fmt.Errorf("slide %d has empty canvas", h.Slide.Index)
	}

	dc := gg.NewContext(w, ht)
	dc.SetColor(color.White)
	dc.Clear()
	dc.Scale(scale, scale)
	paint(&rasterPainter{dc: dc, assets: h.assets, faces: make(map[faceKey]font.Face)}, h.Layout(), h.Width, h.Height)

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected raster type %T", dc.Image())
	}
	return img, nil
}

// parseColor understands SVG color names, #rgb, #rrggbb, rgb(...) and hsv(...)
func parseColor(s string) color.RGBA {
	s = strings.ToLower(strings.TrimSpace(normcolor(s)))
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil && len(hex) == 6 {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	if strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")") {
		if v := colorNumbers(s); len(v) == 3 {
			var c [3]uint8
			for i := range v {
				n, _ := strconv.Atoi(v[i])
				c[i] = uint8(min(max(n, 0), 255))
			}
			return color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
		}
	}
	return color.RGBA{R: 127, G: 127, B: 127, A: 0xff}
}
