package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/airenas/memoir/internal/pkg/citation"
	"github.com/airenas/memoir/internal/pkg/persistence"
)

var htmlTmpl = template.Must(template.New("draft").Funcs(template.FuncMap{
	"paragraphs": paragraphs,
	"marked":     marked,
}).Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 25mm 20mm; }
body { font-family: "Noto Serif KR", serif; line-height: 1.8; font-size: 11pt; }
h1 { text-align: center; margin-bottom: 2em; }
h2 { page-break-before: always; }
h2.first { page-break-before: avoid; }
.citation { color: #888; font-size: 8pt; }
.uncertain { background: #fff3b0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Summary}}
<p class="summary">{{.Summary}}</p>
{{- end}}
{{- range $i, $ch := .Chapters}}
<section class="chapter">
<h2{{if eq $i 0}} class="first"{{end}}>{{$ch.Title}}</h2>
{{- range paragraphs $ch.Content}}
<p>{{marked .}}</p>
{{- end}}
</section>
{{- end}}
</body>
</html>
`))

func renderHTML(d *persistence.Draft) ([]byte, error) {
	var b bytes.Buffer
	if err := htmlTmpl.Execute(&b, d); err != nil {
		return nil, fmt.Errorf("can't render html: %w", err)
	}
	return b.Bytes(), nil
}

func marked(s string) template.HTML {
	var b bytes.Buffer
	for _, p := range citation.Split(s) {
		switch p.Kind {
		case citation.Citation:
			b.WriteString(`<span class="citation">`)
			template.HTMLEscape(&b, []byte(p.Text))
			b.WriteString(`</span>`)
		case citation.UncertainMark:
			b.WriteString(`<span class="uncertain">`)
			template.HTMLEscape(&b, []byte(p.Text))
			b.WriteString(`</span>`)
		default:
			template.HTMLEscape(&b, []byte(p.Text))
		}
	}
	return template.HTML(b.String())
}
