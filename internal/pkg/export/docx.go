package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/airenas/memoir/internal/pkg/citation"
	"github.com/airenas/memoir/internal/pkg/persistence"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	docRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`
	stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:rPr><w:sz w:val="22"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:pPr><w:jc w:val="center"/></w:pPr><w:rPr><w:b/><w:sz w:val="40"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:pPr><w:pageBreakBefore/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
</w:styles>`
	docStart = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	docEnd = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:body></w:document>`
)

// fixed time keeps the same draft rendering to the same bytes
var zipTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func renderDOCX(d *persistence.Draft) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		data func(io.Writer) error
	}{
		{name: "[Content_Types].xml", data: static(contentTypesXML)},
		{name: "_rels/.rels", data: static(relsXML)},
		{name: "word/_rels/document.xml.rels", data: static(docRelsXML)},
		{name: "word/styles.xml", data: static(stylesXML)},
		{name: "word/document.xml", data: func(w io.Writer) error { return writeDocument(w, d) }},
	}
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: zipTime})
		if err != nil {
			return nil, fmt.Errorf("can't create %s: %w", p.name, err)
		}
		if err := p.data(w); err != nil {
			return nil, fmt.Errorf("can't write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("can't close docx: %w", err)
	}
	return buf.Bytes(), nil
}

func static(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func writeDocument(w io.Writer, d *persistence.Draft) error {
	var b bytes.Buffer
	b.WriteString(docStart)
	styled(&b, "Title", d.Title)
	if d.Summary != "" {
		styled(&b, "", d.Summary)
	}
	for i, ch := range d.Chapters {
		if i == 0 {
			b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading1"/><w:pageBreakBefore w:val="0"/></w:pPr>`)
			run(&b, ch.Title, "")
			b.WriteString(`</w:p>`)
		} else {
			styled(&b, "Heading1", ch.Title)
		}
		for _, p := range paragraphs(ch.Content) {
			b.WriteString(`<w:p>`)
			for _, pc := range citation.Split(p) {
				switch pc.Kind {
				case citation.Citation:
					run(&b, pc.Text, `<w:color w:val="888888"/><w:sz w:val="16"/>`)
				case citation.UncertainMark:
					run(&b, pc.Text, `<w:highlight w:val="yellow"/>`)
				default:
					run(&b, pc.Text, "")
				}
			}
			b.WriteString(`</w:p>`)
		}
	}
	b.WriteString(docEnd)
	_, err := w.Write(b.Bytes())
	return err
}

func styled(b *bytes.Buffer, style, text string) {
	b.WriteString(`<w:p>`)
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	run(b, text, "")
	b.WriteString(`</w:p>`)
}

func run(b *bytes.Buffer, text, props string) {
	b.WriteString(`<w:r>`)
	if props != "" {
		b.WriteString(`<w:rPr>` + props + `</w:rPr>`)
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString(`</w:t></w:r>`)
}
