package vidgraph

// NodeType identifies the kind of work a node represents on the canvas.
type NodeType string

const (
	NodeTypeImage  NodeType = "image"
	NodeTypePrompt NodeType = "prompt"
	NodeTypeVideo  NodeType = "video"
)

// NodeStatus is the lifecycle state of a node's generation flow.
type NodeStatus string

const (
	StatusIdle       NodeStatus = "idle"
	StatusProcessing NodeStatus = "processing"
	StatusCompleted  NodeStatus = "completed"
	StatusFailed     NodeStatus = "failed"
)

// Well-known handle names. Outputs live on the right edge of a node,
// inputs on the left.
const (
	HandleOutput      = "output"
	HandlePromptInput = "prompt-input"
	HandleImageInput  = "image-input"
)

// Position is a point in canvas space (top-left anchor of a node).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents a unit of work in the graph.
type Node struct {
	ID           string     `json:"id"`
	Type         NodeType   `json:"type"`
	Position     Position   `json:"position"`
	Data         NodeData   `json:"data"`
	Status       NodeStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NodeData is a tagged union keyed by the node's type. Exactly the variant
// matching Node.Type is expected to be set; the others stay nil.
type NodeData struct {
	Prompt *PromptPayload `json:"prompt,omitempty"`
	Image  *ImagePayload  `json:"image,omitempty"`
	Video  *VideoPayload  `json:"video,omitempty"`
}

// PromptPayload is the payload of a prompt node.
type PromptPayload struct {
	PromptText string `json:"prompt_text"`
}

// ImagePayload is the payload of an image node.
type ImagePayload struct {
	ImageRef string `json:"image_ref"`
}

// VideoPayload is the payload of a video node. Progress, Stage and
// ProgressMessage are written only by the generation flow while the node is
// processing; VideoRef and ThumbnailRef are set on completion.
type VideoPayload struct {
	Resolution      string `json:"resolution,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Duration        int    `json:"duration,omitempty"`
	Progress        int    `json:"progress,omitempty"`
	Stage           string `json:"stage,omitempty"`
	ProgressMessage string `json:"progress_message,omitempty"`
	VideoRef        string `json:"video_url,omitempty"`
	ThumbnailRef    string `json:"thumbnail_url,omitempty"`
}

// NodePatch is a partial update of a node's data. Non-nil variants are
// merged into the node; within VideoPatch, non-nil fields overwrite.
type NodePatch struct {
	Prompt *PromptPayload `json:"prompt,omitempty"`
	Image  *ImagePayload  `json:"image,omitempty"`
	Video  *VideoPatch    `json:"video,omitempty"`
}

// VideoPatch is a field-level partial update of a VideoPayload.
type VideoPatch struct {
	Resolution      *string `json:"resolution,omitempty"`
	AspectRatio     *string `json:"aspect_ratio,omitempty"`
	Duration        *int    `json:"duration,omitempty"`
	Progress        *int    `json:"progress,omitempty"`
	Stage           *string `json:"stage,omitempty"`
	ProgressMessage *string `json:"progress_message,omitempty"`
	VideoRef        *string `json:"video_url,omitempty"`
	ThumbnailRef    *string `json:"thumbnail_url,omitempty"`
}

// Apply merges the patch into data, allocating variants as needed.
func (p NodePatch) Apply(data *NodeData) {
	if p.Prompt != nil {
		payload := *p.Prompt
		data.Prompt = &payload
	}
	if p.Image != nil {
		payload := *p.Image
		data.Image = &payload
	}
	if p.Video != nil {
		if data.Video == nil {
			data.Video = &VideoPayload{}
		}
		p.Video.apply(data.Video)
	}
}

func (p *VideoPatch) apply(v *VideoPayload) {
	if p.Resolution != nil {
		v.Resolution = *p.Resolution
	}
	if p.AspectRatio != nil {
		v.AspectRatio = *p.AspectRatio
	}
	if p.Duration != nil {
		v.Duration = *p.Duration
	}
	if p.Progress != nil {
		v.Progress = *p.Progress
	}
	if p.Stage != nil {
		v.Stage = *p.Stage
	}
	if p.ProgressMessage != nil {
		v.ProgressMessage = *p.ProgressMessage
	}
	if p.VideoRef != nil {
		v.VideoRef = *p.VideoRef
	}
	if p.ThumbnailRef != nil {
		v.ThumbnailRef = *p.ThumbnailRef
	}
}

// Clone returns a deep copy of the data so callers can hand out snapshots
// without sharing variant pointers.
func (d NodeData) Clone() NodeData {
	out := NodeData{}
	if d.Prompt != nil {
		p := *d.Prompt
		out.Prompt = &p
	}
	if d.Image != nil {
		p := *d.Image
		out.Image = &p
	}
	if d.Video != nil {
		p := *d.Video
		out.Video = &p
	}
	return out
}

// Connection represents a directed edge from one node's output handle to
// another node's input handle. It references nodes by id and owns neither.
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	SourceHandle string `json:"source_handle"`
	TargetHandle string `json:"target_handle"`
}
