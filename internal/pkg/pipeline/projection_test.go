package pipeline

import (
	"testing"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/stretchr/testify/assert"
)

func newJob(t status.JobType, st status.JobStatus, pr int) *persistence.Job {
	return &persistence.Job{ID: string(t) + string(st), CycleID: "c1", Type: t, Status: st, Progress: pr}
}

func TestProject_BeforeSubmit(t *testing.T) {
	got := Project(&persistence.Project{ID: "p1", Status: status.Uploading}, nil, nil, nil)
	assert.Equal(t, &Projection{ID: "p1", Status: status.Uploading}, got)
}

func TestProject_Stages(t *testing.T) {
	p := &persistence.Project{ID: "p1", Status: status.Processing, CycleID: "c1"}
	c := &persistence.Cycle{ID: "c1", Clips: 2, Pending: 1, Succeeded: 1, Policy: persistence.PolicyStrict}
	tests := []struct {
		name      string
		jobs      []*persistence.Job
		draft     *persistence.Draft
		cycle     *persistence.Cycle
		wantSt    status.ProjectStatus
		wantStage status.JobType
		wantPr    int
	}{
		{name: "stt half", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobPending, 0)}, wantSt: status.Processing, wantStage: status.STT, wantPr: 20},
		{name: "stt running", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobProcessing, 50)}, wantSt: status.Processing, wantStage: status.STT, wantPr: 30},
		{name: "extract", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobPending, 0)},
			wantSt: status.Processing, wantStage: status.Extract, wantPr: 40},
		{name: "write", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobCompleted, 100),
			newJob(status.Write, status.JobProcessing, 50)},
			wantSt: status.Processing, wantStage: status.Write, wantPr: 80},
		{name: "completed", cycle: c, draft: &persistence.Draft{ID: "d1", Version: 1},
			jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
				newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobCompleted, 100),
				newJob(status.Write, status.JobCompleted, 100)},
			wantSt: status.Completed, wantPr: 100},
		{name: "no draft no completed", cycle: c,
			jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
				newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobCompleted, 100),
				newJob(status.Write, status.JobCompleted, 100)},
			wantSt: status.Processing, wantStage: status.Write, wantPr: 99},
		{name: "stt failed", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobFailed, 0)}, wantSt: status.Failed, wantStage: status.STT, wantPr: 20},
		{name: "stt failed tolerated",
			cycle: &persistence.Cycle{ID: "c1", Clips: 2, Succeeded: 1, Failed: 1, Policy: persistence.PolicyBestEffort, MinClips: 1},
			jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
				newJob(status.STT, status.JobFailed, 0), newJob(status.Extract, status.JobPending, 0)},
			wantSt: status.Processing, wantStage: status.Extract, wantPr: 40},
		{name: "write failed", cycle: c, jobs: []*persistence.Job{newJob(status.STT, status.JobCompleted, 100),
			newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobCompleted, 100),
			newJob(status.Write, status.JobFailed, 0)}, wantSt: status.Failed, wantStage: status.Write, wantPr: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(p, tt.cycle, tt.jobs, tt.draft)
			assert.Equal(t, tt.wantSt, got.Status)
			assert.Equal(t, tt.wantStage, got.Stage)
			assert.Equal(t, tt.wantPr, got.Progress)
		})
	}
}

func TestProject_IgnoresOtherCycles(t *testing.T) {
	p := &persistence.Project{ID: "p1", Status: status.Processing, CycleID: "c2"}
	c := &persistence.Cycle{ID: "c2", Clips: 1, Pending: 1, Policy: persistence.PolicyStrict}
	old := newJob(status.Write, status.JobCompleted, 100)
	got := Project(p, c, []*persistence.Job{old, {ID: "n", CycleID: "c2", Type: status.STT, Status: status.JobPending}},
		&persistence.Draft{ID: "d1", Version: 1})
	assert.Equal(t, status.Processing, got.Status)
	assert.Equal(t, status.STT, got.Stage)
	assert.Equal(t, "d1", got.DraftID)
}

func TestProject_Exports(t *testing.T) {
	p := &persistence.Project{ID: "p1", Status: status.Completed, CycleID: "c1"}
	c := &persistence.Cycle{ID: "c1", Clips: 1, Succeeded: 1, Policy: persistence.PolicyStrict}
	jobs := []*persistence.Job{newJob(status.STT, status.JobCompleted, 100), newJob(status.Extract, status.JobCompleted, 100),
		newJob(status.Write, status.JobCompleted, 100), {ID: "e1", Type: status.ExportPDF, Status: status.JobPending}}
	got := Project(p, c, jobs, &persistence.Draft{ID: "d1", Version: 2})
	assert.Equal(t, status.Completed, got.Status)
	assert.Equal(t, []ExportInfo{{JobID: "e1", Type: status.ExportPDF, Status: status.JobPending}}, got.Exports)
	assert.Equal(t, 2, got.Version)
}
