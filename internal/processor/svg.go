package processor

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	svg "github.com/ajstarks/svgo/float"
)

const (
	strokefmt = "stroke-width:%.2fpx;stroke:%s;stroke-opacity:%.2f"
	fillfmt   = "fill:%s;fill-opacity:%.2f"
)

// svgPainter draws onto an SVG document
type svgPainter struct {
	doc     *svg.SVG
	assets  map[string]asset
	fontmap map[string]string
}

func (p *svgPainter) fontlookup(s string) string {
	if font, ok := p.fontmap[s]; ok {
		return font
	}
	return p.fontmap["sans"]
}

func (p *svgPainter) rect(x, y, w, h float64, color string, opacity float64) {
	p.doc.Rect(x, y, w, h, fmt.Sprintf(fillfmt, normcolor(color), setop(opacity)))
}

func (p *svgPainter) ellipse(cx, cy, rx, ry float64, color string, opacity float64) {
	p.doc.Ellipse(cx, cy, rx, ry, fmt.Sprintf(fillfmt, normcolor(color), setop(opacity)))
}

func (p *svgPainter) line(x1, y1, x2, y2, sw float64, color string, opacity float64) {
	p.doc.Line(x1, y1, x2, y2, fmt.Sprintf(strokefmt, sw, normcolor(color), setop(opacity)))
}

func (p *svgPainter) polygon(xs, ys []float64, color string, opacity float64) {
	p.doc.Polygon(xs, ys, fmt.Sprintf(fillfmt, normcolor(color), setop(opacity)))
}

func (p *svgPainter) text(x, y float64, s string, size float64, font, color, align string, opacity float64) {
	style := fmt.Sprintf("fill:%s;fill-opacity:%.2f;font-size:%.2fpx;font-family:%s;text-anchor:%s",
		normcolor(color), setop(opacity), size, p.fontlookup(font), textalign(align))
	p.doc.Text(x, y, s, `xml:space="preserve"`, style)
}

// image embeds mounted chart assets as data URIs; other names stay as links
func (p *svgPainter) image(x, y, w, h float64, name string) {
	link := name
	if a, ok := p.assets[name]; ok {
		link = "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.png)
	}
	p.doc.Image(x, y, int(w), int(h), link)
}

// errWriter keeps the first write error; svgo does not report them
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}

// SVG writes the slide as a standalone SVG document
func (h *Handle) SVG(w io.Writer) error {
	ew := &errWriter{w: w}
	doc := svg.New(ew)
	doc.Start(h.Width, h.Height)
	paint(&svgPainter{doc: doc, assets: h.assets, fontmap: h.fontmap}, h.Layout(), h.Width, h.Height)
	doc.End()
	return ew.err
}

// SVGString is SVG into a string
func (h *Handle) SVGString() string {
	var b strings.Builder
	h.SVG(&b)
	return b.String()
}
