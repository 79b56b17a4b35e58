package export

import (
	"fmt"
	"strings"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
)

// Format of the exported document
type Format string

const (
	// PDF is a print-ready HTML document converted to pdf by the client
	PDF Format = "pdf"
	// DOCX word document
	DOCX Format = "docx"
)

// Result is a rendered document
type Result struct {
	Data        []byte
	ContentType string
	Ext         string
}

// ParseFormat parses request format
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case PDF:
		return PDF, nil
	case DOCX:
		return DOCX, nil
	}
	return "", fmt.Errorf("wrong format '%s'", s)
}

// JobType returns the export job type of the format
func (f Format) JobType() status.JobType {
	if f == DOCX {
		return status.ExportDOCX
	}
	return status.ExportPDF
}

// FormatOf returns format of the export job type
func FormatOf(t status.JobType) (Format, error) {
	switch t {
	case status.ExportDOCX:
		return DOCX, nil
	case status.ExportPDF:
		return PDF, nil
	}
	return "", fmt.Errorf("not an export job type '%s'", t)
}

// Render renders the draft into the format
func Render(f Format, d *persistence.Draft) (*Result, error) {
	if d == nil || len(d.Chapters) == 0 {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("no draft content"))
	}
	switch f {
	case DOCX:
		b, err := renderDOCX(d)
		if err != nil {
			return nil, err
		}
		return &Result{Data: b, Ext: ".docx",
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, nil
	case PDF:
		b, err := renderHTML(d)
		if err != nil {
			return nil, err
		}
		return &Result{Data: b, Ext: ".html", ContentType: "text/html; charset=utf-8"}, nil
	}
	return nil, utils.NewErrNonRetryable(fmt.Errorf("wrong format '%s'", f))
}

func paragraphs(content string) []string {
	res := []string{}
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if s := strings.TrimSpace(p); s != "" {
			res = append(res, s)
		}
	}
	return res
}
