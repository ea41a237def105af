package view

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/odyssey-erp/accountkit/internal/shared"
	"github.com/odyssey-erp/accountkit/web"
)

const dateLayout = "02 Jan 2006 15:04 MST"

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title         string
	CSRFToken     string
	Flash         *shared.FlashMessage
	CurrentPath   string
	Authenticated bool
	// Location is the timezone dates are rendered in. Render fills it from
	// the request context when unset.
	Location *time.Location
	Data     any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"localTime": localTime,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(ctx context.Context, w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(ctx, w, http.StatusOK, name, data)
}

// RenderStatus renders the template into a buffer and writes it with status.
// Nothing is written when execution fails.
func (e *Engine) RenderStatus(ctx context.Context, w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.Location == nil {
		data.Location = shared.LocationFromContext(ctx)
	}
	if !data.Authenticated {
		if sess := shared.SessionFromContext(ctx); sess != nil {
			data.Authenticated = sess.Authenticated()
		}
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// localTime formats t in loc, UTC when loc is nil.
func localTime(loc *time.Location, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}
