package processor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/joeblew999/dashdeck/pkg/slides"
)

// Chart placement on graph slides, in canvas percent
const (
	chartXp     = 50.0
	chartYp     = 44.0
	chartWidth  = 0.86
	chartHeight = 0.68
)

func chartAssetName(index int) string {
	return fmt.Sprintf("chart-%03d.png", index)
}

// chartSize returns the chart raster size in canvas pixels
func (r *Renderer) chartSize() (int, int) {
	return int(float64(r.cfg.Width) * chartWidth), int(float64(r.cfg.Height) * chartHeight)
}

// quote makes s safe inside a decksh string literal
func quote(s string) string {
	s = strings.NewReplacer(`"`, "'", `\`, "/", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	return `"` + s + `"`
}

func (r *Renderer) begin(buf *bytes.Buffer) {
	buf.WriteString("deck\n")
	fmt.Fprintf(buf, "slide %s %s\n", quote(r.cfg.Background), quote(r.cfg.Foreground))
	if len(r.cfg.Theme) > 0 {
		buf.Write(r.cfg.Theme)
		if !bytes.HasSuffix(r.cfg.Theme, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}
}

func end(buf *bytes.Buffer) {
	buf.WriteString("eslide\nedeck\n")
}

// titleMarkup centers the dashboard name
func (r *Renderer) titleMarkup(title string) []byte {
	var buf bytes.Buffer
	r.begin(&buf)
	fmt.Fprintf(&buf, "ctext %s 50 54 5\n", quote(title))
	fmt.Fprintf(&buf, "line 30 46 70 46 0.2 %s\n", quote("gray"))
	fmt.Fprintf(&buf, "ctext %s 50 38 1.8 %s %s\n", quote("Dashboard export"), quote("sans"), quote("gray"))
	end(&buf)
	return buf.Bytes()
}

// graphMarkup places the graph title above its chart image
func (r *Renderer) graphMarkup(s slides.Slide, asset string) []byte {
	title := s.Graph.Title
	if title == "" {
		title = s.Label()
	}
	cw, ch := r.chartSize()

	var buf bytes.Buffer
	r.begin(&buf)
	fmt.Fprintf(&buf, "text %s 5 91 2.6\n", quote(title))
	fmt.Fprintf(&buf, "line 5 86 95 86 0.15 %s\n", quote("lightgray"))
	fmt.Fprintf(&buf, "image %s %g %g %d %d\n", quote(asset), chartXp, chartYp, cw, ch)
	end(&buf)
	return buf.Bytes()
}
