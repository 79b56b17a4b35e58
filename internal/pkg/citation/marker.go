package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Uncertain marks a passage that needs confirmation
const Uncertain = "{불확실}"

// Kind of a text piece
type Kind int

const (
	// Text - plain narrative
	Text Kind = iota
	// Citation - source time range marker
	Citation
	// UncertainMark - uncertainty marker
	UncertainMark
)

// Piece is a part of chapter content
type Piece struct {
	Kind Kind
	Text string
}

// Range is a parsed citation
type Range struct {
	Start int // seconds
	End   int
}

var (
	markerRe = regexp.MustCompile(`\[(\d{2}:\d{2}(?::\d{2})?)–(\d{2}:\d{2}(?::\d{2})?)\]`)
	anyRe    = regexp.MustCompile(markerRe.String() + `|` + regexp.QuoteMeta(Uncertain))
)

// Find returns all citation markers in text order, markers are `[MM:SS–MM:SS]` or `[HH:MM:SS–HH:MM:SS]`
// with an en dash and no spaces
func Find(text string) []string {
	return markerRe.FindAllString(text, -1)
}

// Split cuts text into plain, citation and uncertainty pieces
// Joining Piece.Text of the result gives the input back
func Split(text string) []Piece {
	res := []Piece{}
	last := 0
	for _, loc := range anyRe.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			res = append(res, Piece{Kind: Text, Text: text[last:loc[0]]})
		}
		m := text[loc[0]:loc[1]]
		k := Citation
		if m == Uncertain {
			k = UncertainMark
		}
		res = append(res, Piece{Kind: k, Text: m})
		last = loc[1]
	}
	if last < len(text) {
		res = append(res, Piece{Kind: Text, Text: text[last:]})
	}
	return res
}

// Parse parses marker `[MM:SS–MM:SS]`
func Parse(marker string) (*Range, error) {
	m := markerRe.FindStringSubmatch(marker)
	if m == nil || len(m[0]) != len(marker) {
		return nil, fmt.Errorf("wrong citation '%s'", marker)
	}
	s, err := ParseTimestamp(m[1])
	if err != nil {
		return nil, err
	}
	e, err := ParseTimestamp(m[2])
	if err != nil {
		return nil, err
	}
	if e < s {
		return nil, fmt.Errorf("wrong citation '%s': end before start", marker)
	}
	return &Range{Start: s, End: e}, nil
}

// ParseTimestamp parses MM:SS or HH:MM:SS into seconds
func ParseTimestamp(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("wrong timestamp '%s'", s)
	}
	res := 0
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("wrong timestamp '%s'", s)
		}
		if i > 0 && v > 59 {
			return 0, fmt.Errorf("wrong timestamp '%s'", s)
		}
		res = res*60 + v
	}
	return res, nil
}

// FormatTimestamp formats seconds as MM:SS, or HH:MM:SS from one hour
func FormatTimestamp(sec float64) string {
	s := int(sec)
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// FormatRange makes a citation marker
func FormatRange(start, end float64) string {
	return "[" + FormatTimestamp(start) + "–" + FormatTimestamp(end) + "]"
}
