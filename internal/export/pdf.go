package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont     = "Arial"
	pdfFontSize = 9
	lineHeight  = 5
)

// PDF renders the markdown transcript onto A4 pages
func PDF(t *Transcript) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s conversation", t.Application), true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfFontSize)

	source := []byte(Markdown(t))
	doc := markdown.Parser().Parse(text.NewReader(source))

	r := &pdfRenderer{
		pdf:       pdf,
		source:    source,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfFontSize)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 11.0
			if node.Level == 1 {
				size = 14
			}
			r.pdf.SetFont(pdfFont, "B", size)
		} else {
			r.pdf.Ln(7)
			r.updateFont()
		}
	case *ast.Paragraph:
		if !entering && r.listLevel == 0 {
			r.pdf.Ln(7)
		}
	case *ast.Text:
		if entering {
			r.pdf.Write(lineHeight, r.translate(string(node.Segment.Value(r.source))))
			if node.SoftLineBreak() {
				r.pdf.Write(lineHeight, " ")
			}
			if node.HardLineBreak() {
				r.pdf.Ln(lineHeight)
			}
		}
	case *ast.AutoLink:
		if entering {
			r.pdf.Write(lineHeight, r.translate(string(node.URL(r.source))))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(7)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(lineHeight)
			r.pdf.SetX(10 + float64(r.listLevel)*5)
			r.pdf.Write(lineHeight, "- ")
		}
	}
	return ast.WalkContinue, nil
}
