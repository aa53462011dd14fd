// Package views renders the application's pages as templ components.
package views

//go:generate templ generate

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"f1":  func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"f2":  formatSeconds,
	"f4":  formatStat,
	"opt": formatOptional,
	"pct": percent,
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}).ParseFS(templateFS, "templates/*.html"))

// Flash is a one-shot message shown at the top of a page.
type Flash struct {
	Kind    string // info, success, warning, error
	Message string
}

// page is the root data passed to every template.
type page struct {
	ctx    context.Context
	Title  string
	Active string
	Flash  []Flash
	Data   any
}

// T translates a message ID.
func (p page) T(id string) string { return appI18n.T(p.ctx, id) }

// Td translates a message ID with alternating key/value template data.
func (p page) Td(id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(p.ctx, id, data)
}

// Tp translates a pluralized message ID.
func (p page) Tp(id string, n int) string { return appI18n.Tp(p.ctx, id, n) }

// Path prefixes an absolute route with the deployment base path.
func (p page) Path(route string) string { return model.BasePathFromContext(p.ctx) + route }

// CSRF returns the token to embed in forms.
func (p page) CSRF() string { return model.CSRFTokenFromContext(p.ctx) }

func newPage(ctx context.Context, titleID, active string, flash []Flash, data any) page {
	return page{
		ctx:    ctx,
		Title:  appI18n.T(ctx, titleID),
		Active: active,
		Flash:  flash,
		Data:   data,
	}
}

func render(name, titleID, active string, flash []Flash, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return templates.ExecuteTemplate(w, name, newPage(ctx, titleID, active, flash, data))
	})
}

// layoutPart renders one of the shared layout templates (header, footer)
// inside a templ component.
func layoutPart(name string, p page) templ.Component {
	return templ.FromGoHTML(templates.Lookup(name), p)
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

// percent scales v against max into a CSS width percentage.
func percent(v, max any) string {
	fv, fm := toFloat(v), toFloat(max)
	if fm <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", math.Max(0, math.Min(1, fv/fm))*100)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
