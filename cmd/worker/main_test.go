package main

import (
	"testing"
	"time"

	"github.com/airenas/memoir/internal/pkg/worker"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func Test_defaultV(t *testing.T) {
	assert.Equal(t, "vd", defaultV("", "vd"))
	assert.Equal(t, "aaa", defaultV("aaa", "vd"))
	assert.Equal(t, 1, defaultV(0, 1))
	assert.Equal(t, 10, defaultV(10, 1))
	assert.Equal(t, time.Minute, defaultV(time.Duration(0), time.Minute))
	assert.Equal(t, time.Minute*5, defaultV(time.Minute*5, time.Minute))
}

func Test_queueConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("queue.stt.workers", 4)
	cfg.Set("queue.stt.timeout", "20m")
	got := queueConfig(cfg, "stt", 2, time.Minute)
	assert.Equal(t, 4, got.Workers)
	assert.Equal(t, time.Minute*20, got.Timeout)
	got = queueConfig(cfg, "write", 2, time.Minute)
	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, time.Minute, got.Timeout)
}

func Test_initQueues(t *testing.T) {
	data := &worker.ServiceData{}
	initQueues(viper.New(), data)
	assert.Equal(t, 2, data.STT.Workers)
	assert.Equal(t, 2, data.Extract.Workers)
	assert.Equal(t, 1, data.Write.Workers)
	assert.Equal(t, 2, data.Export.Workers)
	assert.Equal(t, time.Minute*15, data.Write.Timeout)
	assert.Equal(t, worker.JobTimeBudget(data)+time.Minute, data.MaxJobTime)
	assert.True(t, data.MaxJobTime > 3*data.STT.Timeout)
}

func Test_initQueues_Config(t *testing.T) {
	cfg := viper.New()
	cfg.Set("worker.count", 5)
	cfg.Set("queue.write.workers", 3)
	cfg.Set("pipeline.maxJobTime", "2h")
	data := &worker.ServiceData{}
	initQueues(cfg, data)
	assert.Equal(t, 5, data.STT.Workers)
	assert.Equal(t, 3, data.Write.Workers)
	assert.Equal(t, 2*time.Hour, data.MaxJobTime)
}
