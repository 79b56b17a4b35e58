package generator

import (
	"fmt"
	"strings"

	"github.com/airenas/memoir/internal/pkg/persistence"
)

// ValidateStory checks required story fields
func ValidateStory(s *persistence.StoryData) error {
	if s == nil {
		return fmt.Errorf("no story data")
	}
	if s.People == nil {
		return fmt.Errorf("no people")
	}
	if s.Places == nil {
		return fmt.Errorf("no places")
	}
	if s.KeyEpisodes == nil {
		return fmt.Errorf("no keyEpisodes")
	}
	if s.Themes == nil {
		return fmt.Errorf("no themes")
	}
	for i, p := range s.People {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("person %d has no name", i)
		}
	}
	for i, p := range s.Places {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("place %d has no name", i)
		}
	}
	for i, e := range s.KeyEpisodes {
		if strings.TrimSpace(e.Title) == "" {
			return fmt.Errorf("episode %d has no title", i)
		}
	}
	return nil
}
