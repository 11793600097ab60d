// Package view renders the HTML preview of a quote from embedded templates.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/diewo77/devispro/i18n"
	"github.com/diewo77/devispro/internal/quote"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	once    sync.Once
	tpl     *template.Template
	loadErr error
)

var printers = map[string]*message.Printer{
	i18n.FR: message.NewPrinter(language.French),
	i18n.EN: message.NewPrinter(language.English),
}

// Funcs returns the template helpers for lang.
func Funcs(lang string) template.FuncMap {
	p, ok := printers[lang]
	if !ok {
		lang, p = i18n.FR, printers[i18n.FR]
	}
	return template.FuncMap{
		"t":     func(code string) string { return i18n.T(lang, code) },
		"lang":  func() string { return lang },
		"money": func(v float64) string { return p.Sprintf("%.2f", v) + " €" },
		"num":   func(v float64) string { return p.Sprintf("%v", v) },
		"date":  func(s string) string { return formatDate(lang, s) },
		"upper": strings.ToUpper,
		"lines": func(s string) []string {
			if s = strings.TrimSpace(s); s == "" {
				return nil
			}
			return strings.Split(s, "\n")
		},
	}
}

func load() (*template.Template, error) {
	once.Do(func() {
		// helpers are rebound per render; these only satisfy parsing
		tpl, loadErr = template.New("root").Funcs(Funcs(i18n.FR)).ParseFS(templateFS, "templates/*.html")
	})
	return tpl, loadErr
}

// Render executes the named template with helpers for lang. The output is
// buffered so a failing template writes nothing.
func Render(w io.Writer, lang, name string, data any) error {
	base, err := load()
	if err != nil {
		return fmt.Errorf("view: load templates: %w", err)
	}
	t, err := base.Clone()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.Funcs(Funcs(lang)).ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// QuotePreview renders q as a standalone HTML page.
func QuotePreview(w io.Writer, lang string, q quote.Quote) error {
	return Render(w, lang, "quote.html", q)
}

func formatDate(lang, s string) string {
	t, err := time.Parse(quote.DateLayout, s)
	if err != nil {
		return s
	}
	if lang == i18n.EN {
		return t.Format("January 2, 2006")
	}
	return t.Format("02/01/2006")
}
