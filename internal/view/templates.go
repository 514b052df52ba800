package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/tragel/adminconsole/internal/shared"
	"github.com/tragel/adminconsole/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across full pages.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"hiddenUnless": func(visible bool) template.HTMLAttr {
			if visible {
				return ""
			}
			return "hidden"
		},
		"disabledIf": func(disabled bool) template.HTMLAttr {
			if disabled {
				return "disabled"
			}
			return ""
		},
		"readonlyIf": func(readOnly bool) template.HTMLAttr {
			if readOnly {
				return "readonly"
			}
			return ""
		},
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a full page with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.execute(w, http.StatusOK, name, data)
}

// RenderStatus executes a full page with a non-200 status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	return e.execute(w, status, name, data)
}

// RenderPartial executes a fragment with arbitrary data and status.
func (e *Engine) RenderPartial(w http.ResponseWriter, status int, name string, data any) error {
	return e.execute(w, status, name, data)
}

// execute buffers output so a failing template never leaves a half-written page.
func (e *Engine) execute(w http.ResponseWriter, status int, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
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
