package pipeline

import (
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
)

const (
	weightSTT     = 40
	weightExtract = 20
	weightWrite   = 40
)

// StageInfo keeps job counters of one stage
type StageInfo struct {
	Type      status.JobType `json:"type"`
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed,omitempty"`
	Running   int            `json:"running,omitempty"`
}

// ExportInfo describes one export job
type ExportInfo struct {
	JobID  string           `json:"jobId"`
	Type   status.JobType   `json:"type"`
	Status status.JobStatus `json:"status"`
}

// Projection is a client view of a project's processing state
type Projection struct {
	ID       string               `json:"id"`
	Status   status.ProjectStatus `json:"status"`
	Stage    status.JobType       `json:"stage,omitempty"`
	Progress int                  `json:"progress"`
	Stages   []StageInfo          `json:"stages,omitempty"`
	DraftID  string               `json:"draftId,omitempty"`
	Version  int                  `json:"version,omitempty"`
	Exports  []ExportInfo         `json:"exports,omitempty"`
}

// Project derives the projection from job records of the current cycle
func Project(p *persistence.Project, c *persistence.Cycle, jobs []*persistence.Job, draft *persistence.Draft) *Projection {
	res := &Projection{ID: p.ID}
	if draft != nil {
		res.DraftID, res.Version = draft.ID, draft.Version
	}
	for _, j := range jobs {
		if j.Type.IsExport() {
			res.Exports = append(res.Exports, ExportInfo{JobID: j.ID, Type: j.Type, Status: j.Status})
		}
	}
	if c == nil || p.Status == status.Draft || p.Status == status.Uploading {
		res.Status = p.Status
		if res.Status == status.Completed && draft == nil {
			res.Status = status.Processing
		}
		if res.Status == status.Completed {
			res.Progress = 100
		}
		return res
	}

	stt, ext, wrt := &StageInfo{Type: status.STT}, &StageInfo{Type: status.Extract}, &StageInfo{Type: status.Write}
	var sttPr, extPr, wrtPr int
	for _, j := range jobs {
		if j.CycleID != c.ID {
			continue
		}
		var si *StageInfo
		var pr *int
		switch j.Type {
		case status.STT:
			si, pr = stt, &sttPr
		case status.Extract:
			si, pr = ext, &extPr
		case status.Write:
			si, pr = wrt, &wrtPr
		default:
			continue
		}
		si.Total++
		switch j.Status {
		case status.JobCompleted:
			si.Completed++
			*pr += 100
		case status.JobFailed:
			si.Failed++
		case status.JobProcessing:
			si.Running++
			*pr += clamp(j.Progress)
		}
	}
	res.Stages = []StageInfo{*stt, *ext, *wrt}

	tolerated := c.Policy == persistence.PolicyBestEffort && Decide(c) != Fail
	failed := p.Status == status.Failed || ext.Failed > 0 || wrt.Failed > 0 || (stt.Failed > 0 && !tolerated)
	switch {
	case failed:
		res.Status = status.Failed
	case wrt.Completed > 0 && draft != nil:
		res.Status = status.Completed
		res.Progress = 100
		return res
	case c.Cancelled:
		res.Status = p.Status
		return res
	default:
		res.Status = status.Processing
	}

	clips := c.Clips
	if clips < 1 {
		clips = 1
	}
	sttDone := stt.Completed
	if tolerated {
		sttPr += stt.Failed * 100
		sttDone += stt.Failed
	}
	res.Progress = (weightSTT*min(sttPr, clips*100)/clips + weightExtract*min(extPr, 100) + weightWrite*min(wrtPr, 100)) / 100
	if res.Progress > 99 {
		res.Progress = 99
	}
	switch {
	case sttDone < c.Clips:
		res.Stage = status.STT
	case ext.Completed == 0:
		res.Stage = status.Extract
	default:
		res.Stage = status.Write
	}
	return res
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
