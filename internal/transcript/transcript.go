// Package transcript renders a conversation as a standalone HTML page.
package transcript

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/model"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Data is the view model passed to the template.
type Data struct {
	SessionID   string
	GeneratedAt time.Time
	Messages    []model.Message
	// Assessment of the most recent analyzed turn, if any.
	Assessment *detection.Assessment
}

// Renderer renders transcripts with the embedded template.
type Renderer struct {
	tmpl *template.Template
}

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// New parses the embedded template.
func New() (*Renderer, error) {
	funcMap := template.FuncMap{
		"messageClass": func(t model.MessageType) string {
			switch t {
			case model.MessageUser:
				return "msg-user"
			case model.MessageAssistant:
				return "msg-assistant"
			case model.MessageError:
				return "msg-error"
			default:
				return "msg-system"
			}
		},
		"bannerClass": func(a *detection.Assessment) string {
			switch a.Banner {
			case "red":
				if a.Urgency == "immediate" {
					return "banner-critical"
				}
				return "banner-red"
			case "yellow":
				return "banner-yellow"
			default:
				return "banner-green"
			}
		},
		"clock": func(t time.Time) string {
			return t.Format("15:04:05")
		},
		"meta": func(m map[string]any, key string) string {
			v, ok := m[key]
			if !ok || v == nil {
				return ""
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%.2f", f)
			}
			return fmt.Sprint(v)
		},
		// markdown escapes the text and renders only **bold** spans.
		"markdown": func(s string) template.HTML {
			escaped := template.HTMLEscapeString(s)
			escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
			return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
		},
	}

	tmpl, err := template.New("transcript.html.tmpl").Funcs(funcMap).ParseFS(templates, "templates/transcript.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the page to w.
func (r *Renderer) Render(w io.Writer, data Data) error {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now().UTC()
	}
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	return nil
}

// RenderString renders the page to a string.
func (r *Renderer) RenderString(data Data) (string, error) {
	var buf strings.Builder
	if err := r.Render(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteFile renders the page into path.
func (r *Renderer) WriteFile(data Data, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	defer f.Close()
	return r.Render(f, data)
}
