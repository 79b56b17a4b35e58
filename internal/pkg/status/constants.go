package status

// ProjectStatus is the coarse lifecycle state of a project
type ProjectStatus string

const (
	// Draft - created, no processing requested yet
	Draft ProjectStatus = "DRAFT"
	// Uploading - at least one clip attached
	Uploading ProjectStatus = "UPLOADING"
	// Processing - pipeline cycle is running
	Processing ProjectStatus = "PROCESSING"
	// Completed - active draft exists
	Completed ProjectStatus = "COMPLETED"
	// Failed - last cycle failed
	Failed ProjectStatus = "FAILED"
)

// JobStatus is the state of one unit of work
type JobStatus string

const (
	// JobPending - waiting in queue
	JobPending JobStatus = "PENDING"
	// JobProcessing - worker is on it
	JobProcessing JobStatus = "PROCESSING"
	// JobCompleted - final
	JobCompleted JobStatus = "COMPLETED"
	// JobFailed - final
	JobFailed JobStatus = "FAILED"
	// JobCancelled - final
	JobCancelled JobStatus = "CANCELLED"
)

// JobType names the pipeline stage
type JobType string

const (
	// STT transcription of one clip
	STT JobType = "STT"
	// Extract story facts from combined transcripts
	Extract JobType = "EXTRACT"
	// Write narrative draft
	Write JobType = "WRITE"
	// ExportPDF renders printable document
	ExportPDF JobType = "EXPORT_PDF"
	// ExportDOCX renders word document
	ExportDOCX JobType = "EXPORT_DOCX"
)

var (
	projectStatuses = map[string]ProjectStatus{string(Draft): Draft, string(Uploading): Uploading,
		string(Processing): Processing, string(Completed): Completed, string(Failed): Failed}
	jobStatuses = map[string]JobStatus{string(JobPending): JobPending, string(JobProcessing): JobProcessing,
		string(JobCompleted): JobCompleted, string(JobFailed): JobFailed, string(JobCancelled): JobCancelled}
	jobTypes = map[string]JobType{string(STT): STT, string(Extract): Extract, string(Write): Write,
		string(ExportPDF): ExportPDF, string(ExportDOCX): ExportDOCX}
)

func (st ProjectStatus) String() string {
	return string(st)
}

func (st JobStatus) String() string {
	return string(st)
}

func (t JobType) String() string {
	return string(t)
}

// Terminal returns true if no further transition is allowed
func (st JobStatus) Terminal() bool {
	return st == JobCompleted || st == JobFailed || st == JobCancelled
}

// IsExport returns true for document rendering jobs
func (t JobType) IsExport() bool {
	return t == ExportPDF || t == ExportDOCX
}

// ProjectFrom returns project status from string, ok is false for unknown value
func ProjectFrom(s string) (ProjectStatus, bool) {
	res, ok := projectStatuses[s]
	return res, ok
}

// JobFrom returns job status from string
func JobFrom(s string) (JobStatus, bool) {
	res, ok := jobStatuses[s]
	return res, ok
}

// TypeFrom returns job type from string
func TypeFrom(s string) (JobType, bool) {
	res, ok := jobTypes[s]
	return res, ok
}
