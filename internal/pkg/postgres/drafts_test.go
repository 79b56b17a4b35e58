package postgres

import (
	"testing"

	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_eventStatus(t *testing.T) {
	to, from, err := eventStatus(status.Write)
	require.Nil(t, err)
	assert.Equal(t, status.Completed, to)
	assert.Equal(t, []status.ProjectStatus{status.Processing}, from)

	_, _, err = eventStatus(status.ExportPDF)
	assert.NotNil(t, err)
}
