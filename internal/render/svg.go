// Package render turns an aggregate into the SVG card and the terminal summary.
package render

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dustin/go-humanize"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// DefaultTitle is used when no title is configured.
const DefaultTitle = "Lines of Code Edited"

const (
	rowTop    = 65
	rowHeight = 50
)

type svgRow struct {
	Label     string
	Total     string
	Additions string
	Deletions string
	Y         int
}

type svgCard struct {
	Title  string
	Height int
	Rows   []svgRow
}

var svgTemplate = template.Must(template.New("card").Funcs(template.FuncMap{
	"esc": html.EscapeString,
	"add": func(a, b int) int { return a + b },
}).Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="495" height="{{.Height}}" viewBox="0 0 495 {{.Height}}">
  <rect x="0.5" y="0.5" rx="4.5" width="494" height="{{add .Height -1}}" fill="#282828" stroke="#3c3836"/>
<g transform="translate(25, 18)"><path d="M8 2L2 8L8 14" stroke="#fe8019" stroke-width="2" fill="none" stroke-linecap="round" stroke-linejoin="round"/><path d="M16 2L22 8L16 14" stroke="#fe8019" stroke-width="2" fill="none" stroke-linecap="round" stroke-linejoin="round"/><line x1="13" y1="0" x2="11" y2="16" stroke="#fe8019" stroke-width="2" stroke-linecap="round"/></g>
  <text x="58" y="33" fill="#fabd2f" font-size="18" font-family="'Segoe UI', Ubuntu, 'Helvetica Neue', Sans-Serif" font-weight="600">{{esc .Title}}</text>
{{- range .Rows}}
  <text x="25" y="{{.Y}}" fill="#8ec07c" font-size="14" font-family="'Segoe UI', Ubuntu, 'Helvetica Neue', Sans-Serif" font-weight="400">{{esc .Label}}</text>
  <text x="200" y="{{.Y}}" fill="#ebdbb2" font-size="14" font-family="'Segoe UI', Ubuntu, 'Helvetica Neue', Sans-Serif" font-weight="700">{{.Total}} lines</text>
  <text x="200" y="{{add .Y 20}}" font-size="12" font-family="'Segoe UI', Ubuntu, 'Helvetica Neue', Sans-Serif"><tspan fill="#b8bb26">+{{.Additions}}</tspan>  <tspan fill="#a89984">/</tspan>  <tspan fill="#fb4934">-{{.Deletions}}</tspan></text>
{{- end}}
</svg>
`))

// SVG renders the gruvbox card with one row per window, in domain.Windows order.
// Windows missing from result render as zero.
func SVG(result domain.AggregateResult, title string) ([]byte, error) {
	if title == "" {
		title = DefaultTitle
	}
	card := svgCard{Title: title}
	y := rowTop
	for _, w := range domain.Windows {
		t, _ := result.Get(w.Name)
		card.Rows = append(card.Rows, svgRow{
			Label:     w.Name,
			Total:     humanize.Comma(int64(t.Total)),
			Additions: humanize.Comma(int64(t.Additions)),
			Deletions: humanize.Comma(int64(t.Deletions)),
			Y:         y,
		})
		y += rowHeight
	}
	card.Height = y + 10

	var buf bytes.Buffer
	if err := svgTemplate.Execute(&buf, card); err != nil {
		return nil, fmt.Errorf("failed to render svg: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSVG renders the card and writes it to path, creating parent directories.
func WriteSVG(path string, result domain.AggregateResult, title string) error {
	data, err := SVG(result, title)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write svg: %w", err)
	}
	return nil
}
