package debugsrv

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/lguibr/actorkernel/kernel/module"
	"github.com/lguibr/actorkernel/kernel/sandbox"
)

// markdownToHTML renders a free-text field to safe HTML, grounded on
// Roasbeef-substrate/internal/web/server.go's markdownToHTML: GFM plus
// hard line wraps, falling back to an escaped literal on a render
// error rather than ever emitting unsanitized input.
func markdownToHTML(s string) template.HTML {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

var detailPage = template.Must(template.New("detail").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
</body></html>`))

func renderPage(w http.ResponseWriter, title string, body template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = detailPage.Execute(w, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: body})
}

// renderModuleDetail serves /modules/{id}: the module's header fields
// plus its free-text Description rendered from Markdown.
func (s *Server) renderModuleDetail(w http.ResponseWriter, rec module.Record) {
	var b strings.Builder
	fmt.Fprintf(&b, "**State:** %s\n\n**Author:** %s\n\n**License:** %s\n\n",
		rec.State.String(), rec.Author, rec.License)
	if rec.Sandbox != nil {
		fmt.Fprintf(&b, "**Security level:** %s\n\n**Effective capabilities:** %s\n\n",
			rec.Sandbox.Level().String(), rec.Sandbox.Effective().String())
	}
	b.WriteString("---\n\n")
	b.WriteString(rec.Description)

	title := fmt.Sprintf("module %s (#%d)", rec.Name, rec.ID)
	renderPage(w, title, markdownToHTML(b.String()))
}

// renderQuarantineReport serves /quarantine/{id}: a generated incident
// report combining the module's violation history and final capability
// set, per the debug server's quarantine-reporting role — the same
// markdown pipeline as module descriptions, applied to a report this
// package generates rather than to stored free text.
func (s *Server) renderQuarantineReport(w http.ResponseWriter, rec module.Record) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quarantine incident report: %s (#%d)\n\n", rec.Name, rec.ID)

	if rec.Sandbox == nil {
		b.WriteString("_module has no sandbox bound; nothing to report._\n")
		renderPage(w, "quarantine report", markdownToHTML(b.String()))
		return
	}

	fmt.Fprintf(&b, "**Current level:** %s\n\n", rec.Sandbox.Level().String())
	fmt.Fprintf(&b, "**Quarantine events:** %d\n\n", rec.Sandbox.QuarantineEvents())
	fmt.Fprintf(&b, "**Final capability set:** %s\n\n", rec.Sandbox.Effective().String())

	b.WriteString("## Violation history\n\n")
	violations := rec.Sandbox.Violations()
	if len(violations) == 0 {
		b.WriteString("_no violations recorded._\n\n")
	} else {
		b.WriteString("| id | kind | attempted | description |\n|---|---|---|---|\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", v.ID, v.Kind.String(), v.Attempted, v.Description)
		}
	}

	renderPage(w, fmt.Sprintf("quarantine report: %s", rec.Name), markdownToHTML(b.String()))
}

func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	defer recoverHTTP(w, "quarantine")
	if !requireGet(w, r) {
		return
	}
	id, ok := trailingID(r.URL.Path, "/quarantine/")
	if !ok {
		http.Error(w, "module id required", http.StatusBadRequest)
		return
	}
	rec, found := s.kc.Modules.Snapshot(module.ModID(id))
	if !found {
		http.NotFound(w, r)
		return
	}
	if rec.Sandbox == nil || rec.Sandbox.Level() != sandbox.Quarantine {
		http.Error(w, "module is not quarantined", http.StatusConflict)
		return
	}
	s.renderQuarantineReport(w, rec)
}

// trailingID extracts the numeric id following prefix in an URL path,
// e.g. trailingID("/modules/7", "/modules/") -> (7, true). Returns
// false for the bare prefix (a list request, not a detail request).
func trailingID(path, prefix string) (uint32, bool) {
	rest := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
