package narrative

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/airenas/memoir/internal/pkg/citation"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
)

// DefaultTitle is used when the generator returns no title
const DefaultTitle = "나의 자서전"

// DraftData is a narrative generator response
type DraftData struct {
	Title     string                `json:"title"`
	Chapters  []persistence.Chapter `json:"chapters"`
	WordCount int                   `json:"wordCount"`
	Summary   string                `json:"summary"`
}

// BuildDraft validates generator output and prepares a draft for saving
// Version, ID and activity are set by the store
func BuildDraft(projectID string, data *DraftData) (*persistence.Draft, error) {
	if data == nil {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("no draft data"))
	}
	if len(data.Chapters) == 0 {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("no chapters"))
	}
	chapters := make([]persistence.Chapter, 0, len(data.Chapters))
	for i, ch := range data.Chapters {
		if err := validateChapter(&ch); err != nil {
			return nil, utils.NewErrNonRetryable(fmt.Errorf("chapter %d: %w", i+1, err))
		}
		chapters = append(chapters, normalize(ch))
	}
	res := &persistence.Draft{ProjectID: projectID, Title: strings.TrimSpace(data.Title),
		Summary: data.Summary, Chapters: chapters}
	if res.Title == "" {
		res.Title = DefaultTitle
	}
	Recount(res)
	return res, nil
}

// Recount updates content, word and page counts from chapters
func Recount(d *persistence.Draft) {
	d.Content = Combine(d.Chapters)
	d.WordCount = WordCount(d.Content)
	d.PageCount = len(d.Chapters)
}

// ReplaceChapter returns a copy of the draft with chapter i replaced
func ReplaceChapter(d *persistence.Draft, i int, ch *persistence.Chapter) (*persistence.Draft, error) {
	if i < 0 || i >= len(d.Chapters) {
		return nil, fmt.Errorf("wrong chapter index %d", i)
	}
	if err := validateChapter(ch); err != nil {
		return nil, utils.NewErrNonRetryable(err)
	}
	res := *d
	res.Chapters = make([]persistence.Chapter, len(d.Chapters))
	copy(res.Chapters, d.Chapters)
	res.Chapters[i] = normalize(*ch)
	Recount(&res)
	return &res, nil
}

func validateChapter(ch *persistence.Chapter) error {
	if strings.TrimSpace(ch.Title) == "" {
		return fmt.Errorf("no title")
	}
	if strings.TrimSpace(ch.Content) == "" {
		return fmt.Errorf("no content")
	}
	return nil
}

func normalize(ch persistence.Chapter) persistence.Chapter {
	if len(ch.Citations) == 0 {
		ch.Citations = validCitations(ch.Content)
	}
	if ch.Citations == nil {
		ch.Citations = []string{}
	}
	if ch.UncertainParts == nil {
		ch.UncertainParts = []string{}
	}
	return ch
}

// validCitations returns markers of the text with a parsable range, a reversed range is dropped
func validCitations(text string) []string {
	var res []string
	for _, m := range citation.Find(text) {
		if _, err := citation.Parse(m); err != nil {
			continue
		}
		res = append(res, m)
	}
	return res
}

// Combine joins chapter contents with a blank line
func Combine(chapters []persistence.Chapter) string {
	res := make([]string, 0, len(chapters))
	for _, c := range chapters {
		res = append(res, c.Content)
	}
	return strings.Join(res, "\n\n")
}

// WordCount counts non whitespace characters
func WordCount(s string) int {
	res := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			res++
		}
	}
	return res
}

// CombineTranscripts joins transcripts with per clip markers, in the given order
func CombineTranscripts(trs []*persistence.Transcript) string {
	res := make([]string, 0, len(trs))
	for i, t := range trs {
		res = append(res, fmt.Sprintf("[녹음 %d]\n%s", i+1, t.Text))
	}
	return strings.Join(res, "\n\n")
}

// CitedTranscripts is CombineTranscripts with a citation marker before every segment,
// so the writer can point to source time ranges. A transcript without segments keeps its text
func CitedTranscripts(trs []*persistence.Transcript) string {
	res := make([]string, 0, len(trs))
	for i, t := range trs {
		text := t.Text
		if len(t.Segments) > 0 {
			lines := make([]string, 0, len(t.Segments))
			for _, s := range t.Segments {
				lines = append(lines, citation.FormatRange(s.Start, s.End)+" "+strings.TrimSpace(s.Text))
			}
			text = strings.Join(lines, "\n")
		}
		res = append(res, fmt.Sprintf("[녹음 %d]\n%s", i+1, text))
	}
	return strings.Join(res, "\n\n")
}

// Bound cuts text to at most n characters
func Bound(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}
