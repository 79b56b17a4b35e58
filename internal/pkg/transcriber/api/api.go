package api

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/airenas/memoir/internal/pkg/persistence"
)

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio *AudioData) (*Result, error)
}

// AudioData keeps structure for transcribe method
type AudioData struct {
	Name     string
	MimeType string
	Language string
	Content  []byte
}

// Result is a transcription service response
type Result struct {
	Text     string                `json:"text"`
	Language string                `json:"language"`
	Duration float64               `json:"duration,omitempty"`
	Segments []persistence.Segment `json:"segments"`
}

// Validate checks the result and orders segments by start
func Validate(r *Result) error {
	if r == nil || strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("empty transcript")
	}
	for i, s := range r.Segments {
		if s.Start < 0 || s.End < s.Start {
			return fmt.Errorf("wrong segment %d [%.2f, %.2f]", i, s.Start, s.End)
		}
	}
	sort.SliceStable(r.Segments, func(i, j int) bool { return r.Segments[i].Start < r.Segments[j].Start })
	return nil
}
