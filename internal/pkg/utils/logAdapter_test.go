package utils

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/vgarvardt/gue/v5/adapter"
)

func newTestAdapter() (*GueLogAdapter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &GueLogAdapter{log: zerolog.New(buf).With().Str("pool", "stt").Logger()}, buf
}

func TestGueLogAdapter_With(t *testing.T) {
	l, buf := newTestAdapter()
	l.With(adapter.F("job", "1")).With(adapter.F("queue", "q")).Error("failed", adapter.F("error", fmt.Errorf("olia")))
	assert.Contains(t, buf.String(), `"pool":"stt"`)
	assert.Contains(t, buf.String(), `"job":"1"`)
	assert.Contains(t, buf.String(), `"queue":"q"`)
	assert.Contains(t, buf.String(), `"error":"olia"`)
	assert.Contains(t, buf.String(), `"message":"failed"`)

	buf.Reset()
	l.Debug("plain")
	assert.NotContains(t, buf.String(), `"job"`)
}

func TestGueLogAdapter_Info(t *testing.T) {
	l, buf := newTestAdapter()
	l.Info("polling", adapter.F("n", 2))
	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), `"n":2`)
}
