package vidgraph

// JobType categorizes generation jobs.
type JobType string

const (
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeVideoExtension  JobType = "video_extension"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one server-side generation task for a node. It is ephemeral
// from the graph's point of view: once terminal, only its effect on the
// node's status and data persists.
type Job struct {
	ID              string     `json:"id"`
	NodeID          string     `json:"node_id"`
	ProjectID       string     `json:"project_id,omitempty"`
	Type            JobType    `json:"type"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	Stage           string     `json:"stage,omitempty"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Result          *JobResult `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	OperationID     string     `json:"operation_id,omitempty"`
	// Request carries the generation inputs for the worker that will run
	// the job. Not exposed on status responses.
	Request *GenerationRequest `json:"request,omitempty"`
}

// JobResult is what a completed job produced.
type JobResult struct {
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// GenerationRequest is the input handed to the generation service when a
// video node is triggered.
type GenerationRequest struct {
	NodeID      string `json:"node_id"`
	Prompt      string `json:"prompt"`
	ImageRef    string `json:"image_url,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}
