package processor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ajstarks/deck"
)

const (
	linespacing  = 1.4
	listspacing  = 2.0
	defaultColor = "rgb(127,127,127)"
)

// painter is a drawing target for a laid-out slide.
// Coordinates are canvas pixels, y grows downward; rect and image take the top-left corner.
type painter interface {
	rect(x, y, w, h float64, color string, opacity float64)
	ellipse(cx, cy, rx, ry float64, color string, opacity float64)
	line(x1, y1, x2, y2, sw float64, color string, opacity float64)
	polygon(xs, ys []float64, color string, opacity float64)
	text(x, y float64, s string, size float64, font, color, align string, opacity float64)
	image(x, y, w, h float64, name string)
}

// pct converts percentages to canvas measures
func pct(p float64, m float64) float64 {
	return ((p / 100.0) * m)
}

// dimen returns canvas dimensions from percentages
func dimen(w, h float64, xp, yp, sp float64) (float64, float64, float64) {
	return pct(xp, w), pct(100-yp, h), pct(sp, w)
}

// setop sets the alpha value:
// 0 == default value (opaque)
// -1 == fully transparent
// > 0 set opacity percent
func setop(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 0:
		return v / 100
	}
	return 1
}

// textalign normalizes deck alignment names to start, middle or end
func textalign(s string) string {
	switch s {
	case "center", "middle", "mid", "c":
		return "middle"
	case "right", "end", "e":
		return "end"
	}
	return "start"
}

// colorNumbers returns a list of numbers from a comma separated list,
// in the form of xxx(n1, n2, n3), after removing tabs and spaces.
func colorNumbers(s string) []string {
	return strings.Split(strings.NewReplacer(" ", "", "\t", "").Replace(s[4:len(s)-1]), ",")
}

// hsv2rgb converts hsv(h (0-360), s (0-100), v (0-100)) to rgb
func hsv2rgb(h, s, v float64) (int, int, int) {
	s /= 100
	v /= 100
	if s > 1 || v > 1 {
		return 0, 0, 0
	}
	h = math.Mod(h, 360)
	c := v * s
	section := h / 60
	x := c * (1 - math.Abs(math.Mod(section, 2)-1))

	var r, g, b float64
	switch {
	case section >= 0 && section <= 1:
		r, g, b = c, x, 0
	case section > 1 && section <= 2:
		r, g, b = x, c, 0
	case section > 2 && section <= 3:
		r, g, b = 0, c, x
	case section > 3 && section <= 4:
		r, g, b = 0, x, c
	case section > 4 && section <= 5:
		r, g, b = x, 0, c
	case section > 5 && section <= 6:
		r, g, b = c, 0, x
	default:
		return 0, 0, 0
	}
	m := v - c
	return int((r + m) * 255), int((g + m) * 255), int((b + m) * 255)
}

// normcolor converts hsv(...) to rgb(...), passing anything else unchanged
func normcolor(color string) string {
	if !strings.HasPrefix(color, "hsv(") || !strings.HasSuffix(color, ")") || len(color) <= 5 {
		return color
	}
	var red, green, blue int
	if v := colorNumbers(color); len(v) == 3 {
		hue, _ := strconv.ParseFloat(v[0], 64)
		sat, _ := strconv.ParseFloat(v[1], 64)
		value, _ := strconv.ParseFloat(v[2], 64)
		red, green, blue = hsv2rgb(hue, sat, value)
	}
	return fmt.Sprintf("rgb(%d,%d,%d)", red, green, blue)
}

// paint walks the slide layers in the standard deck order
func paint(p painter, slide deck.Slide, cw, ch float64) {
	if len(slide.Bg) > 0 {
		p.rect(0, 0, cw, ch, slide.Bg, 0)
	}
	fg := slide.Fg
	if fg == "" {
		fg = "black"
	}

	for _, im := range slide.Image {
		x, y, _ := dimen(cw, ch, im.Xp, im.Yp, 0)
		iw, ih := float64(im.Width), float64(im.Height)
		if im.Scale > 0 {
			iw *= im.Scale / 100
			ih *= im.Scale / 100
		}
		// scale the image to fit the canvas width
		if im.Autoscale == "on" && iw < cw {
			ih = (cw / iw) * ih
			iw = cw
		}
		p.image(x-iw/2, y-ih/2, iw, ih, im.Name)
		if len(im.Caption) > 0 {
			capsize := deck.Pwidth(im.Sp, cw, pct(2.0, cw))
			font, color, align := im.Font, im.Color, im.Align
			if font == "" {
				font = "sans"
			}
			if color == "" {
				color = fg
			}
			if align == "" {
				align = "center"
			}
			p.text(x, y+ih/2+capsize*2, im.Caption, capsize, font, color, align, 0)
		}
	}

	for _, rect := range slide.Rect {
		x, y, _ := dimen(cw, ch, rect.Xp, rect.Yp, 0)
		w := pct(rect.Wp, cw)
		h := pct(rect.Hp, ch)
		if rect.Hr != 0 {
			h = pct(rect.Hr, w)
		}
		color := rect.Color
		if color == "" {
			color = defaultColor
		}
		p.rect(x-w/2, y-h/2, w, h, color, rect.Opacity)
	}

	for _, e := range slide.Ellipse {
		x, y, _ := dimen(cw, ch, e.Xp, e.Yp, 0)
		w := pct(e.Wp, cw)
		h := pct(e.Hp, ch)
		if e.Hr != 0 {
			h = pct(e.Hr, w)
		}
		color := e.Color
		if color == "" {
			color = defaultColor
		}
		p.ellipse(x, y, w/2, h/2, color, e.Opacity)
	}

	for _, l := range slide.Line {
		x1, y1, sw := dimen(cw, ch, l.Xp1, l.Yp1, l.Sp)
		x2, y2, _ := dimen(cw, ch, l.Xp2, l.Yp2, 0)
		if sw == 0 {
			sw = 2.0
		}
		color := l.Color
		if color == "" {
			color = defaultColor
		}
		p.line(x1, y1, x2, y2, sw, color, l.Opacity)
	}

	for _, poly := range slide.Polygon {
		xs, ys, ok := polyPoints(poly.XC, poly.YC, cw, ch)
		if !ok {
			continue
		}
		color := poly.Color
		if color == "" {
			color = defaultColor
		}
		p.polygon(xs, ys, color, poly.Opacity)
	}

	for _, t := range slide.Text {
		color, font, ls := t.Color, t.Font, t.Lp
		if color == "" {
			color = fg
		}
		if font == "" {
			font = "sans"
		}
		if ls == 0 {
			ls = linespacing
		}
		x, y, fs := dimen(cw, ch, t.Xp, t.Yp, t.Sp)
		lines := strings.Split(t.Tdata, "\n")
		if t.Type == "block" {
			width := cw / 2
			if t.Wp > 0 {
				width = pct(t.Wp, cw)
			}
			lines = wrap(t.Tdata, fs, width)
		}
		if t.Type == "code" {
			font = "mono"
		}
		for _, s := range lines {
			p.text(x, y, s, fs, font, color, t.Align, t.Opacity)
			y += ls * fs
		}
	}

	for _, l := range slide.List {
		color, font, ls := l.Color, l.Font, l.Lp
		if color == "" {
			color = fg
		}
		if font == "" {
			font = "sans"
		}
		if ls == 0 {
			ls = listspacing
		}
		x, y, fs := dimen(cw, ch, l.Xp, l.Yp, l.Sp)
		if l.Type == "bullet" {
			x += fs
		}
		for i, li := range l.Li {
			s := li.ListText
			if l.Type == "number" {
				s = fmt.Sprintf("%d. %s", i+1, s)
			}
			if l.Type == "bullet" {
				rs := fs / 2
				p.ellipse(x-fs, y-(rs*2)/3, rs/2, rs/2, color, l.Opacity)
			}
			itemColor := color
			if li.Color != "" {
				itemColor = li.Color
			}
			itemFont := font
			if li.Font != "" {
				itemFont = li.Font
			}
			p.text(x, y, s, fs, itemFont, itemColor, l.Align, l.Opacity)
			y += ls * fs
		}
	}
}

// polyPoints parses space separated percent coordinates
func polyPoints(xc, yc string, cw, ch float64) ([]float64, []float64, bool) {
	xs := strings.Fields(xc)
	ys := strings.Fields(yc)
	if len(xs) != len(ys) || len(xs) < 3 {
		return nil, nil, false
	}
	px := make([]float64, len(xs))
	py := make([]float64, len(xs))
	for i := range xs {
		x, _ := strconv.ParseFloat(xs[i], 64)
		y, _ := strconv.ParseFloat(ys[i], 64)
		px[i] = pct(x, cw)
		py[i] = pct(100-y, ch)
	}
	return px, py, true
}

// wrap breaks s into lines that fit width, estimating glyph width from the font size
func wrap(s string, fs, width float64) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(s) {
		if word == "\\n" {
			lines = append(lines, line)
			line = ""
			continue
		}
		next := word
		if line != "" {
			next = line + " " + word
		}
		if line != "" && fs*float64(len(next))*0.55 > width {
			lines = append(lines, line)
			next = word
		}
		line = next
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
