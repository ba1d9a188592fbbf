package models

// TaskStatus enumerates sub-task states reported by the remote service.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusSuccess    TaskStatus = "success"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is an end state for a sub-task.
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Rank orders statuses along the forward lifecycle. Unknown values rank as pending.
func (s TaskStatus) Rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusSuccess, StatusFailed:
		return 2
	default:
		return 0
	}
}

// Sub-task type tags produced by the remote planner.
const (
	TaskTypeImageAnalysis  = "image_analysis"
	TaskTypeDocAnalysis    = "doc_analysis"
	TaskTypeLinkCrawl      = "link_crawl"
	TaskTypeSearch         = "search"
	TaskTypeCardGeneration = "card_generation"
)

// SubTask is one unit of backend work as exposed by the status endpoint.
type SubTask struct {
	StepID        string     `json:"step_id"`
	Title         string     `json:"title"`
	Type          string     `json:"type,omitempty"`
	Status        TaskStatus `json:"status"`
	ResultSummary string     `json:"result_summary,omitempty"`
}

// StatusSnapshot is the cumulative state returned by one status poll.
type StatusSnapshot struct {
	ProcessID  string    `json:"process_id,omitempty"`
	SubTasks   []SubTask `json:"sub_tasks"`
	IsFinished bool      `json:"is_finished"`
	FinalJSON  *string   `json:"final_json"`
}

// HasFinal reports whether the snapshot carries a non-empty final artifact.
func (s StatusSnapshot) HasFinal() bool {
	return s.FinalJSON != nil && *s.FinalJSON != ""
}

// FinalResult is the decoded final artifact: card JSON text plus base64 PNG bytes.
type FinalResult struct {
	JSON  string `json:"json"`
	Image string `json:"image,omitempty"`
}
