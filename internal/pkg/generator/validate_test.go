package generator

import (
	"testing"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func valid() *persistence.StoryData {
	return &persistence.StoryData{People: []persistence.Person{{Name: "a"}}, Places: []persistence.Place{},
		Themes: []string{}, KeyEpisodes: []persistence.Episode{{Title: "t"}}}
}

func TestValidateStory(t *testing.T) {
	tests := []struct {
		name    string
		f       func(*persistence.StoryData)
		wantErr bool
	}{
		{name: "ok", f: func(sd *persistence.StoryData) {}, wantErr: false},
		{name: "people", f: func(sd *persistence.StoryData) { sd.People = nil }, wantErr: true},
		{name: "places", f: func(sd *persistence.StoryData) { sd.Places = nil }, wantErr: true},
		{name: "themes", f: func(sd *persistence.StoryData) { sd.Themes = nil }, wantErr: true},
		{name: "episodes", f: func(sd *persistence.StoryData) { sd.KeyEpisodes = nil }, wantErr: true},
		{name: "person name", f: func(sd *persistence.StoryData) { sd.People[0].Name = " " }, wantErr: true},
		{name: "place name", f: func(sd *persistence.StoryData) { sd.Places = []persistence.Place{{}} }, wantErr: true},
		{name: "episode title", f: func(sd *persistence.StoryData) { sd.KeyEpisodes[0].Title = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := valid()
			tt.f(sd)
			assert.Equal(t, tt.wantErr, ValidateStory(sd) != nil)
		})
	}
	assert.NotNil(t, ValidateStory(nil))
}
