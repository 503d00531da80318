// Package document assembles captured slides into a landscape PDF, one page per capture
package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/nfnt/resize"
)

// PageSize is a supported paper size
type PageSize string

const (
	A4     PageSize = "A4"
	A3     PageSize = "A3"
	Letter PageSize = "Letter"
	Legal  PageSize = "Legal"
)

// ParsePageSize accepts page size names case-insensitively
func ParsePageSize(s string) (PageSize, error) {
	for _, p := range []PageSize{A4, A3, Letter, Legal} {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported page size %q", s)
}

// ErrFinalized is returned when a finalized document is used again
var ErrFinalized = errors.New("document already finalized")

// Options configures a document
type Options struct {
	PageSize PageSize
	// MaxImageWidth downscales wider captures before embedding; zero keeps them as is
	MaxImageWidth int
	Title         string
	// Created is stamped into the PDF metadata; zero means now
	Created time.Time
}

// Page records what was placed on one page
type Page struct {
	Label  string
	Width  float64
	Height float64
}

// Assembler builds the document. It is positioned on page 1 from creation and
// is not safe for concurrent use.
type Assembler struct {
	pdf       *fpdf.Fpdf
	opts      Options
	pages     []Page
	finalized bool
}

// New creates a landscape document with its first page ready
func New(opts Options) (*Assembler, error) {
	if opts.PageSize == "" {
		opts.PageSize = A4
	}
	if _, err := ParsePageSize(string(opts.PageSize)); err != nil {
		return nil, err
	}
	if opts.Created.IsZero() {
		opts.Created = time.Now()
	}

	pdf := fpdf.New("L", "mm", string(opts.PageSize), "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("dashdeck", true)
	pdf.SetCreationDate(opts.Created)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	pdf.AddPage()
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &Assembler{pdf: pdf, opts: opts}, nil
}

// PageWidth is the page width in mm
func (a *Assembler) PageWidth() float64 {
	w, _ := a.pdf.GetPageSize()
	return w
}

// ImageHeight is the placed height for a w x h capture spanning the full page width
func (a *Assembler) ImageHeight(w, h int) float64 {
	return float64(h) * a.PageWidth() / float64(w)
}

// AppendPage places img at the top-left of the next page at full page width.
// The first call uses the page that exists from creation.
func (a *Assembler) AppendPage(label string, img image.Image) error {
	if a.finalized {
		return ErrFinalized
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("page %q: empty image", label)
	}
	w, h := b.Dx(), b.Dy()

	if a.opts.MaxImageWidth > 0 && w > a.opts.MaxImageWidth {
		img = resize.Resize(uint(a.opts.MaxImageWidth), 0, img, resize.Lanczos3)
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page %q: %w", label, err)
	}

	if len(a.pages) > 0 {
		a.pdf.AddPage()
	}
	name := fmt.Sprintf("page-%d", len(a.pages)+1)
	opt := fpdf.ImageOptions{ImageType: "PNG"}
	a.pdf.RegisterImageOptionsReader(name, opt, &buf)

	pw, ph := a.PageWidth(), a.ImageHeight(w, h)
	a.pdf.ImageOptions(name, 0, 0, pw, ph, false, opt, 0, "")
	if err := a.pdf.Error(); err != nil {
		return fmt.Errorf("place page %q: %w", label, err)
	}

	a.pages = append(a.pages, Page{Label: label, Width: pw, Height: ph})
	return nil
}

// Pages returns the placed pages in order
func (a *Assembler) Pages() []Page {
	return append([]Page(nil), a.pages...)
}

// PageCount is the number of pages in the document, including an unused first page
func (a *Assembler) PageCount() int {
	return a.pdf.PageCount()
}

// Finalize serialises the document. The assembler cannot be used afterwards.
func (a *Assembler) Finalize() ([]byte, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true

	var out bytes.Buffer
	if err := a.pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return out.Bytes(), nil
}
