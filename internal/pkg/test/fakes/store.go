package fakes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/google/uuid"
)

// Msg is a queued message
type Msg struct {
	Queue string
	Args  []byte
}

// Store is an in-memory job store, every method runs serialized as one transaction
type Store struct {
	lock sync.Mutex

	projects    map[string]*persistence.Project
	assets      map[string]*persistence.AudioAsset
	cycles      map[string]*persistence.Cycle
	jobs        map[string]*persistence.Job
	transcripts map[string]*persistence.Transcript
	stories     map[string]*persistence.ExtractedStory
	drafts      []*persistence.Draft
	queue       []Msg
	sent        []Msg
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{projects: map[string]*persistence.Project{}, assets: map[string]*persistence.AudioAsset{},
		cycles: map[string]*persistence.Cycle{}, jobs: map[string]*persistence.Job{},
		transcripts: map[string]*persistence.Transcript{}, stories: map[string]*persistence.ExtractedStory{}}
}

func copyOf[T any](v *T) *T {
	res := *v
	return &res
}

// Take drains the queued job messages
func (s *Store) Take() []Msg {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := s.queue
	s.queue = nil
	return res
}

// Sent returns queues of the notifications in sending order
func (s *Store) Sent() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		res = append(res, m.Queue)
	}
	return res
}

// SentMsgs returns notification bodies of the queue
func (s *Store) SentMsgs(queue string) [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := [][]byte{}
	for _, m := range s.sent {
		if m.Queue == queue {
			res = append(res, m.Args)
		}
	}
	return res
}

// SendMessage keeps a notification
func (s *Store) SendMessage(ctx context.Context, msg amessages.Message, queue string) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sent = append(s.sent, Msg{Queue: queue, Args: b})
	return nil
}

// InsertProject adds a project
func (s *Store) InsertProject(ctx context.Context, p *persistence.Project) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return persistence.ErrDuplicate
	}
	if p.Status == "" {
		p.Status = status.Draft
	}
	s.projects[p.ID] = copyOf(p)
	return nil
}

// InsertAsset adds a clip
func (s *Store) InsertAsset(ctx context.Context, a *persistence.AudioAsset) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.projects[a.ProjectID]
	if !ok || p.Deleted {
		return persistence.ErrNotFound
	}
	if !pipeline.CanEditAssets(p.Status) {
		return persistence.ErrStatus
	}
	for _, o := range s.assets {
		if o.ProjectID == a.ProjectID && o.ClipIndex == a.ClipIndex {
			return persistence.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.assets[a.ID] = copyOf(a)
	if to, err := pipeline.Next(p.Status, pipeline.AssetAdded); err == nil {
		p.Status = to
	}
	return nil
}

// LoadProject returns a not deleted project
func (s *Store) LoadProject(ctx context.Context, id string) (*persistence.Project, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.projects[id]
	if !ok || p.Deleted {
		return nil, fmt.Errorf("project %s: %w", id, persistence.ErrNotFound)
	}
	return copyOf(p), nil
}

// SetProjectStatus updates the status if the project is in one of the from states
func (s *Store) SetProjectStatus(ctx context.Context, id, cycleID string, to status.ProjectStatus,
	from ...status.ProjectStatus) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setStatus(id, cycleID, to, from), nil
}

func (s *Store) setStatus(id, cycleID string, to status.ProjectStatus, from []status.ProjectStatus) bool {
	p, ok := s.projects[id]
	if !ok || p.Deleted || (cycleID != "" && p.CycleID != cycleID) {
		return false
	}
	for _, f := range from {
		if f == p.Status {
			p.Status = to
			return true
		}
	}
	return false
}

// DeleteProject marks the project deleted and cancels its work
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.projects[id]
	if !ok || p.Deleted {
		return persistence.ErrNotFound
	}
	p.Deleted = true
	for _, c := range s.cycles {
		if c.ProjectID == id {
			c.Cancelled = true
		}
	}
	s.cancelJobs(id, false)
	return nil
}

// StartCycle opens a new cycle with one STT job per clip
func (s *Store) StartCycle(ctx context.Context, req *persistence.CycleRequest) (*persistence.Cycle, []*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.projects[req.ProjectID]
	if !ok || p.Deleted {
		return nil, nil, persistence.ErrNotFound
	}
	assets := s.projectAssets(p.ID)
	if err := pipeline.CanSubmit(p.Status, len(assets)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", persistence.ErrStatus, err)
	}
	for _, c := range s.cycles {
		if c.ProjectID == p.ID {
			c.Cancelled = true
		}
	}
	s.cancelJobs(p.ID, true)
	c := &persistence.Cycle{ID: uuid.NewString(), ProjectID: p.ID, Clips: len(assets), Pending: len(assets),
		Policy: req.Policy, MinClips: req.MinClips, Created: time.Now()}
	if c.Policy == "" {
		c.Policy = persistence.PolicyStrict
	}
	s.cycles[c.ID] = c
	p.Status, p.CycleID = status.Processing, c.ID
	var jobs []*persistence.Job
	for _, a := range assets {
		a := a
		j, err := s.insertJob(&persistence.EnqueueRequest{ProjectID: p.ID, CycleID: c.ID, Type: status.STT,
			AudioAssetID: a.ID, Payload: func(jobID string) interface{} {
				return &messages.STTMessage{JobMessage: messages.NewJobMessage(p.ID, c.ID, jobID), AudioAssetID: a.ID}
			}})
		if err != nil {
			return nil, nil, err
		}
		jobs = append(jobs, copyOf(j))
	}
	return copyOf(c), jobs, nil
}

func (s *Store) projectAssets(projectID string) []*persistence.AudioAsset {
	res := []*persistence.AudioAsset{}
	for _, a := range s.assets {
		if a.ProjectID == projectID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ClipIndex < res[j].ClipIndex })
	return res
}

// LoadCycle returns the cycle
func (s *Store) LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return copyOf(c), nil
}

// LoadAsset returns the clip
func (s *Store) LoadAsset(ctx context.Context, id string) (*persistence.AudioAsset, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return copyOf(a), nil
}

// Enqueue creates a job and queues its message
func (s *Store) Enqueue(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, err := s.insertJob(req)
	if err != nil {
		return nil, err
	}
	return copyOf(j), nil
}

func (s *Store) insertJob(req *persistence.EnqueueRequest) (*persistence.Job, error) {
	queue := messages.QueueFor(req.Type)
	if queue == "" {
		return nil, fmt.Errorf("no queue for %s", req.Type)
	}
	j := &persistence.Job{ID: uuid.NewString(), ProjectID: req.ProjectID, CycleID: req.CycleID, Type: req.Type,
		Status: status.JobPending, AudioAssetID: req.AudioAssetID, DraftID: req.DraftID, Created: time.Now()}
	var msg interface{} = messages.NewJobMessage(req.ProjectID, req.CycleID, j.ID)
	if req.Payload != nil {
		msg = req.Payload(j.ID)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	s.jobs[j.ID] = j
	s.queue = append(s.queue, Msg{Queue: queue, Args: b})
	return j, nil
}

// LoadJob returns the job
func (s *Store) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return copyOf(j), nil
}

// LoadJobs returns project jobs ordered by creation
func (s *Store) LoadJobs(ctx context.Context, projectID string) ([]*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.projectJobs(projectID, ""), nil
}

// CountIncomplete returns the number of open project jobs of the type
func (s *Store) CountIncomplete(ctx context.Context, projectID string, t status.JobType) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := 0
	for _, j := range s.jobs {
		if j.ProjectID == projectID && j.Type == t && !j.Status.Terminal() {
			res++
		}
	}
	return res, nil
}

// Jobs returns project jobs of the type, all types for empty
func (s *Store) Jobs(projectID string, t status.JobType) []*persistence.Job {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.projectJobs(projectID, t)
}

func (s *Store) projectJobs(projectID string, t status.JobType) []*persistence.Job {
	res := []*persistence.Job{}
	for _, j := range s.jobs {
		if j.ProjectID == projectID && (t == "" || j.Type == t) {
			res = append(res, copyOf(j))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Created.Before(res[j].Created) })
	return res
}

// openJob returns the job if it may change to the status
func (s *Store) openJob(id string, to status.JobStatus) (*persistence.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	if !pipeline.CanTransition(j.Status, to) {
		return nil, persistence.ErrJobClosed
	}
	return j, nil
}

// StartJob marks the job PROCESSING
func (s *Store) StartJob(ctx context.Context, id string) (*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, err := s.openJob(id, status.JobProcessing)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	j.Status = status.JobProcessing
	j.Attempts++
	if j.Started == nil {
		j.Started = &now
	}
	return copyOf(j), nil
}

func (s *Store) completeJob(id string, output interface{}) (*persistence.Job, error) {
	j, err := s.openJob(id, status.JobCompleted)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	j.Status, j.Progress, j.Output, j.Error, j.Completed = status.JobCompleted, 100, b, "", &now
	return j, nil
}

func (s *Store) closeJob(id string, st status.JobStatus, errStr string) (*persistence.Job, error) {
	j, err := s.openJob(id, st)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	j.Status, j.Error, j.Completed = st, errStr, &now
	return j, nil
}

// CompleteJob marks an open job COMPLETED
func (s *Store) CompleteJob(ctx context.Context, id string, output interface{}) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.completeJob(id, output)
	return err
}

// FailJob marks an open job FAILED
func (s *Store) FailJob(ctx context.Context, id, errStr string) (*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, err := s.closeJob(id, status.JobFailed, errStr)
	if err != nil {
		return nil, err
	}
	return copyOf(j), nil
}

// CancelJob cancels an open job
func (s *Store) CancelJob(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.closeJob(id, status.JobCancelled, "")
	if err == persistence.ErrJobClosed {
		return nil
	}
	return err
}

// CancelJobs cancels all open project jobs
func (s *Store) CancelJobs(ctx context.Context, projectID string) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cancelJobs(projectID, false), nil
}

func (s *Store) cancelJobs(projectID string, pipelineOnly bool) int64 {
	var res int64
	for _, j := range s.jobs {
		if j.ProjectID == projectID && !j.Status.Terminal() && (!pipelineOnly || j.CycleID != "") {
			if _, err := s.closeJob(j.ID, status.JobCancelled, ""); err == nil {
				res++
			}
		}
	}
	return res
}

// UpdateProgress sets progress of an open job
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if progress < 0 || progress > 100 {
		return fmt.Errorf("wrong progress %d", progress)
	}
	if j, err := s.openJob(id, status.JobProcessing); err == nil {
		j.Progress = progress
	}
	return nil
}

// StuckJobs returns jobs processing since before the time
func (s *Store) StuckJobs(ctx context.Context, before time.Time) ([]*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := []*persistence.Job{}
	for _, j := range s.jobs {
		if j.Status == status.JobProcessing && j.Started != nil && j.Started.Before(before) {
			res = append(res, copyOf(j))
		}
	}
	return res, nil
}

// LoadTranscript returns the clip transcript
func (s *Store) LoadTranscript(ctx context.Context, audioAssetID string) (*persistence.Transcript, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.transcripts[audioAssetID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return copyOf(t), nil
}

// LoadCycleTranscripts returns transcripts of completed cycle STT jobs ordered by clip
func (s *Store) LoadCycleTranscripts(ctx context.Context, cycleID string) ([]*persistence.Transcript, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := []*persistence.Transcript{}
	for _, j := range s.jobs {
		if j.CycleID != cycleID || j.Type != status.STT || j.Status != status.JobCompleted {
			continue
		}
		if t, ok := s.transcripts[j.AudioAssetID]; ok {
			res = append(res, copyOf(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ClipIndex < res[j].ClipIndex })
	return res, nil
}

// SaveClipResult keeps the first transcript of the clip, completes the job and counts down
func (s *Store) SaveClipResult(ctx context.Context, jobID string, tr *persistence.Transcript) (*persistence.Cycle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.openJob(jobID, status.JobCompleted); err != nil {
		return nil, err
	}
	if old, ok := s.transcripts[tr.AudioAssetID]; ok {
		tr.ID = old.ID
	} else {
		if tr.ID == "" {
			tr.ID = uuid.NewString()
		}
		tr.Created = time.Now()
		s.transcripts[tr.AudioAssetID] = copyOf(tr)
	}
	j, err := s.completeJob(jobID, map[string]string{"transcriptId": tr.ID})
	if err != nil {
		return nil, err
	}
	return s.countDown(j.CycleID, true)
}

// SaveClipFailure fails the job and counts down
func (s *Store) SaveClipFailure(ctx context.Context, jobID, errStr string) (*persistence.Cycle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, err := s.closeJob(jobID, status.JobFailed, errStr)
	if err != nil {
		return nil, err
	}
	return s.countDown(j.CycleID, false)
}

func (s *Store) countDown(cycleID string, ok bool) (*persistence.Cycle, error) {
	c, found := s.cycles[cycleID]
	if !found || c.Pending < 1 {
		return nil, fmt.Errorf("can't count down cycle %s: %w", cycleID, persistence.ErrNotFound)
	}
	c.Pending--
	if ok {
		c.Succeeded++
	} else {
		c.Failed++
	}
	return copyOf(c), nil
}

// ClaimStage creates the single downstream job of the cycle, nil if claimed already
func (s *Store) ClaimStage(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if next, ok := pipeline.NextStage(req.After); !ok || next != req.Type {
		return nil, fmt.Errorf("%w: can't claim %s after %s", pipeline.ErrTransition, req.Type, req.After)
	}
	c, ok := s.cycles[req.CycleID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	var claimed *string
	switch req.Type {
	case status.Extract:
		claimed = &c.ExtractJobID
	case status.Write:
		claimed = &c.WriteJobID
	default:
		return nil, fmt.Errorf("can't claim stage %s", req.Type)
	}
	if *claimed != "" || c.Cancelled {
		return nil, nil
	}
	j, err := s.insertJob(req)
	if err != nil {
		return nil, err
	}
	*claimed = j.ID
	return copyOf(j), nil
}

// SaveStory upserts the project story and completes the job
func (s *Store) SaveStory(ctx context.Context, jobID string, st *persistence.ExtractedStory) (*persistence.ExtractedStory, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.openJob(jobID, status.JobCompleted); err != nil {
		return nil, err
	}
	res := copyOf(st)
	if old, ok := s.stories[st.ProjectID]; ok {
		res.ID, res.Version = old.ID, old.Version+1
	} else {
		res.ID, res.Version = uuid.NewString(), 1
	}
	res.Updated = time.Now()
	if _, err := s.completeJob(jobID, map[string]interface{}{"storyId": res.ID, "version": res.Version}); err != nil {
		return nil, err
	}
	s.stories[st.ProjectID] = res
	return copyOf(res), nil
}

// LoadStory returns the project story
func (s *Store) LoadStory(ctx context.Context, projectID string) (*persistence.ExtractedStory, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	st, ok := s.stories[projectID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return copyOf(st), nil
}

// SaveDraft stores a new active version, with jobID also completes the WRITE stage
func (s *Store) SaveDraft(ctx context.Context, jobID string, d *persistence.Draft) (*persistence.Draft, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.projects[d.ProjectID]
	if !ok || p.Deleted {
		return nil, persistence.ErrNotFound
	}
	to := p.Status
	if jobID != "" {
		j, err := s.openJob(jobID, status.JobCompleted)
		if err != nil {
			return nil, err
		}
		if j.CycleID != p.CycleID {
			return nil, persistence.ErrStaleCycle
		}
		ev, ok := pipeline.CompletionEvent(j.Type)
		if !ok {
			return nil, fmt.Errorf("job %s is not a stage", j.ID)
		}
		if to, err = pipeline.Next(p.Status, ev); err != nil {
			return nil, fmt.Errorf("%w: project is %s", persistence.ErrStatus, p.Status)
		}
	}
	res := copyOf(d)
	res.Version = 1
	for _, o := range s.drafts {
		if o.ProjectID == p.ID {
			if o.Version >= res.Version {
				res.Version = o.Version + 1
			}
			o.Active = false
		}
	}
	res.ID, res.Active, res.Created = uuid.NewString(), true, time.Now()
	s.drafts = append(s.drafts, res)
	if jobID != "" {
		if _, err := s.completeJob(jobID, map[string]interface{}{"draftId": res.ID, "version": res.Version}); err != nil {
			return nil, err
		}
		p.Status = to
	}
	return copyOf(res), nil
}

// LoadDraft returns the draft
func (s *Store) LoadDraft(ctx context.Context, id string) (*persistence.Draft, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, d := range s.drafts {
		if d.ID == id {
			return copyOf(d), nil
		}
	}
	return nil, persistence.ErrNotFound
}

// LoadActiveDraft returns the active project draft
func (s *Store) LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, d := range s.drafts {
		if d.ProjectID == projectID && d.Active {
			return copyOf(d), nil
		}
	}
	return nil, persistence.ErrNotFound
}

// LoadDrafts returns project drafts, the newest first
func (s *Store) LoadDrafts(ctx context.Context, projectID string) ([]*persistence.Draft, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := []*persistence.Draft{}
	for _, d := range s.drafts {
		if d.ProjectID == projectID {
			res = append(res, copyOf(d))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Version > res[j].Version })
	return res, nil
}
