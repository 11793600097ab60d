// Package pdf renders a quote as an A4 PDF document.
//
// Export never fails because of layout problems: when the full document cannot
// be produced it falls back to a minimal single page and reports the document
// as degraded.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/diewo77/devispro/internal/quote"
)

// Layout constants, in mm.
const (
	pageWidth    = 210.0
	margin       = 20.0
	contentWidth = pageWidth - 2*margin
	headerHeight = 40.0
	rowHeight    = 8.0
	pageBottom   = 250.0
	footerY      = 280.0
)

var (
	brandGreen = [3]int{16, 185, 129}
	rowShade   = [3]int{248, 250, 252}
	textDark   = [3]int{31, 41, 55}
	textMuted  = [3]int{107, 114, 128}

	// DESCRIPTION, QTÉ, PRIX UNIT., TVA, TOTAL
	columnWidths = [5]float64{80, 20, 30, 25, 30}
)

// Document is the result of an export.
type Document struct {
	Filename string
	Data     []byte
	// Degraded is set when the minimal fallback document was produced.
	Degraded bool
	Cause    error
}

// Exporter renders quotes. The zero value is not usable, use New.
type Exporter struct {
	now     func() time.Time
	printer *message.Printer
	render  func(q *quote.Quote) ([]byte, error)
}

// New returns an exporter formatting amounts in French locale.
func New() *Exporter {
	e := &Exporter{
		now:     time.Now,
		printer: message.NewPrinter(language.French),
	}
	e.render = e.renderFull
	return e
}

// Export renders q. Totals are recomputed on a copy first so the document
// always matches the line items.
func (e *Exporter) Export(q quote.Quote) (Document, error) {
	q.Services = append([]quote.LineItem(nil), q.Services...)
	quote.Recompute(&q)
	doc := Document{Filename: q.Filename()}

	data, err := e.safeRender(&q)
	if err == nil {
		doc.Data = data
		return doc, nil
	}

	minimal, merr := e.renderMinimal(&q)
	if merr != nil {
		return Document{}, fmt.Errorf("pdf: fallback render: %w (after %v)", merr, err)
	}
	doc.Data = minimal
	doc.Degraded = true
	doc.Cause = err
	return doc, nil
}

func (e *Exporter) safeRender(q *quote.Quote) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: render panic: %v", r)
		}
	}()
	return e.render(q)
}

// Money formats an amount the French way, e.g. "1 234,50 €".
func (e *Exporter) Money(v float64) string {
	s := e.printer.Sprintf("%.2f", v)
	// cp1252 has no narrow no-break space
	s = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(s)
	return s + " €"
}

func (e *Exporter) number(v float64) string {
	return strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(e.printer.Sprintf("%v", v))
}

func (e *Exporter) renderFull(q *quote.Quote) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Devis "+q.Number(), true)
	pdf.SetCreator("devispro", true)
	// pagination of the table is done by hand
	pdf.SetAutoPageBreak(false, 0)
	generated := e.now()
	pdf.SetFooterFunc(func() {
		pdf.SetY(footerY)
		pdf.SetFont("Helvetica", "I", 8)
		setText(pdf, textMuted)
		pdf.CellFormat(0, 5, tr("Document généré le "+generated.Format("02/01/2006 à 15:04")), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	e.header(pdf, tr, q)
	y := e.parties(pdf, tr, q)
	y = e.table(pdf, tr, q, y+10)
	y = e.totals(pdf, tr, q, y+5)
	e.notes(pdf, tr, q, y+10)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("pdf generation error: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) header(pdf *fpdf.Fpdf, tr func(string) string, q *quote.Quote) {
	setFill(pdf, brandGreen)
	pdf.Rect(0, 0, pageWidth, headerHeight, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetXY(margin, 12)
	pdf.Cell(80, 12, "DEVIS")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(pageWidth-margin-80, 12)
	pdf.CellFormat(80, 6, tr("N° "+q.Number()), "", 2, "R", false, 0, "")
	if q.Details.Date != "" {
		pdf.CellFormat(80, 6, tr("Date : "+frenchDate(q.Details.Date)), "", 2, "R", false, 0, "")
	}
	if q.Details.Validity != "" {
		pdf.CellFormat(80, 6, tr("Valable jusqu'au : "+frenchDate(q.Details.Validity)), "", 2, "R", false, 0, "")
	}
}

// parties draws the issuer and client columns and returns the lowest y reached.
func (e *Exporter) parties(pdf *fpdf.Fpdf, tr func(string) string, q *quote.Quote) float64 {
	colWidth := contentWidth / 2
	top := headerHeight + 10

	column := func(x float64, title string, lines []string) float64 {
		pdf.SetXY(x, top)
		pdf.SetFont("Helvetica", "B", 10)
		setText(pdf, brandGreen)
		pdf.CellFormat(colWidth, 6, tr(title), "", 2, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		setText(pdf, textDark)
		for _, l := range lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			pdf.SetX(x)
			pdf.MultiCell(colWidth-5, 5, tr(l), "", "L", false)
		}
		return pdf.GetY()
	}

	c := q.Company
	issuer := []string{c.Name, c.Address}
	if c.SIRET != "" {
		issuer = append(issuer, "SIRET : "+c.SIRET)
	}
	issuer = append(issuer, c.Email, c.Phone)
	left := column(margin, "ÉMETTEUR", issuer)
	right := column(margin+colWidth, "CLIENT", []string{q.Client.Name, q.Client.Address, q.Client.Email})
	if right > left {
		return right
	}
	return left
}

func (e *Exporter) tableHeader(pdf *fpdf.Fpdf, tr func(string) string, y float64) float64 {
	pdf.SetXY(margin, y)
	setFill(pdf, brandGreen)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	titles := [5]string{"DESCRIPTION", "QTÉ", "PRIX UNIT.", "TVA", "TOTAL"}
	aligns := [5]string{"L", "C", "R", "C", "R"}
	for i, title := range titles {
		pdf.CellFormat(columnWidths[i], rowHeight, tr(title), "", 0, aligns[i], true, 0, "")
	}
	return y + rowHeight
}

// table draws the line items, starting a new page whenever the cursor passes
// the page bottom threshold. It returns the y after the last row.
func (e *Exporter) table(pdf *fpdf.Fpdf, tr func(string) string, q *quote.Quote, y float64) float64 {
	y = e.tableHeader(pdf, tr, y)
	pdf.SetFont("Helvetica", "", 9)
	for i, li := range q.Services {
		if y > pageBottom {
			pdf.AddPage()
			y = e.tableHeader(pdf, tr, 20)
			pdf.SetFont("Helvetica", "", 9)
		}
		fill := i%2 == 1
		if fill {
			setFill(pdf, rowShade)
		}
		setText(pdf, textDark)
		pdf.SetXY(margin, y)
		desc := li.Description
		if desc == "" {
			desc = "-"
		}
		pdf.CellFormat(columnWidths[0], rowHeight, truncate(pdf, tr(desc), columnWidths[0]-2), "", 0, "L", fill, 0, "")
		pdf.CellFormat(columnWidths[1], rowHeight, e.number(li.Quantity), "", 0, "C", fill, 0, "")
		pdf.CellFormat(columnWidths[2], rowHeight, tr(e.Money(li.Price)), "", 0, "R", fill, 0, "")
		pdf.CellFormat(columnWidths[3], rowHeight, e.number(li.TVARate)+" %", "", 0, "C", fill, 0, "")
		pdf.CellFormat(columnWidths[4], rowHeight, tr(e.Money(li.Total)), "", 0, "R", fill, 0, "")
		y += rowHeight
	}
	return y
}

func (e *Exporter) totals(pdf *fpdf.Fpdf, tr func(string) string, q *quote.Quote, y float64) float64 {
	if y > pageBottom {
		pdf.AddPage()
		y = 20
	}
	labelX := margin + contentWidth - 90
	line := func(label, value string, size float64, color [3]int) {
		pdf.SetXY(labelX, y)
		pdf.SetFont("Helvetica", "B", size)
		setText(pdf, color)
		pdf.CellFormat(50, 8, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, tr(value), "", 0, "R", false, 0, "")
		y += 8
	}
	line("Total HT", e.Money(q.Totals.HT), 10, textDark)
	line("TVA", e.Money(q.Totals.TVA), 10, textDark)
	setDraw(pdf, brandGreen)
	pdf.Line(labelX, y+1, labelX+90, y+1)
	y += 2
	line("TOTAL TTC", e.Money(q.Totals.TTC), 14, brandGreen)
	return y
}

func (e *Exporter) notes(pdf *fpdf.Fpdf, tr func(string) string, q *quote.Quote, y float64) {
	notes := strings.TrimSpace(q.Details.Notes)
	if notes == "" {
		return
	}
	if y > pageBottom {
		pdf.AddPage()
		y = 20
	}
	pdf.SetXY(margin, y)
	pdf.SetFont("Helvetica", "B", 10)
	setText(pdf, brandGreen)
	pdf.CellFormat(contentWidth, 6, tr("NOTES"), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, textDark)
	pdf.MultiCell(contentWidth, 5, tr(notes), "", "L", false)
}

// renderMinimal produces a bare single page: number, item listing and TTC.
func (e *Exporter) renderMinimal(q *quote.Quote) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(margin, margin)
	pdf.Cell(0, 10, tr("DEVIS N° "+q.Number()))
	pdf.SetFont("Helvetica", "", 10)
	y := margin + 15
	for _, li := range q.Services {
		if y > pageBottom {
			break
		}
		pdf.SetXY(margin, y)
		text := fmt.Sprintf("%s - %v x %s = %s", li.Description, li.Quantity, e.Money(li.Price), e.Money(li.Total))
		pdf.Cell(0, 6, tr(text))
		y += 6
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(margin, y+6)
	pdf.Cell(0, 8, tr("TOTAL TTC : "+e.Money(q.Totals.TTC)))

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setFill(pdf *fpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *fpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *fpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

// truncate shortens an already translated string to fit width.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// frenchDate converts 2006-01-02 to 02/01/2006, leaving other inputs untouched.
func frenchDate(s string) string {
	t, err := time.Parse(quote.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}
