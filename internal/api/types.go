package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CandidateView describes the search result a request was made for.
type CandidateView struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Seeders     int    `json:"seeders"`
	Source      string `json:"source,omitempty"`
	DownloadURL string `json:"download_url"`
	MediaType   string `json:"media_type"`
}

// RequestView describes a request in a transport-friendly format.
type RequestView struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	ChannelID string        `json:"channel_id,omitempty"`
	State     string        `json:"state"`
	Detail    string        `json:"detail,omitempty"`
	Candidate CandidateView `json:"candidate"`
	CreatedAt string        `json:"created_at,omitempty"`
	UpdatedAt string        `json:"updated_at,omitempty"`
}

// ApprovalView describes the approver prompt of a request.
type ApprovalView struct {
	MessageHandle string `json:"message_handle"`
	Outcome       string `json:"outcome"`
	DeciderID     string `json:"decider_id,omitempty"`
	DecidedAt     string `json:"decided_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// HandleView describes the torrent a request resolved to.
type HandleView struct {
	Hash        string `json:"hash,omitempty"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
}

// JobView describes an organizer job.
type JobView struct {
	Hash          string `json:"hash"`
	RequestID     string `json:"request_id"`
	Target        string `json:"target"`
	Name          string `json:"name"`
	SourcePath    string `json:"source_path"`
	Status        string `json:"status"`
	OrganizedPath string `json:"organized_path,omitempty"`
	Error         string `json:"error,omitempty"`
	OutputTail    string `json:"output_tail,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// RequestDetail aggregates every record attached to one request.
type RequestDetail struct {
	Request  RequestView   `json:"request"`
	Approval *ApprovalView `json:"approval,omitempty"`
	Handle   *HandleView   `json:"handle,omitempty"`
	Job      *JobView      `json:"job,omitempty"`
}

// MonitorStatus summarizes the completion monitor loop.
type MonitorStatus struct {
	Running   bool     `json:"running"`
	InFlight  []string `json:"in_flight"`
	LastTick  string   `json:"last_tick,omitempty"`
	LastError string   `json:"last_error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DatabasePath  string         `json:"database_path"`
	LockFilePath  string         `json:"lock_file_path"`
	LogPath       string         `json:"log_path,omitempty"`
	RequestCounts map[string]int `json:"request_counts"`
	Monitor       MonitorStatus  `json:"monitor"`
	Target        string         `json:"organizer_target"`
}

// RequestListResponse wraps a collection of requests.
type RequestListResponse struct {
	Requests []RequestView `json:"requests"`
}

// JobListResponse wraps a collection of organizer jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// CandidatePayload is the candidate portion of an inbound request.
type CandidatePayload struct {
	Title       string `json:"title" validate:"required,max=512"`
	Author      string `json:"author" validate:"max=512"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	Seeders     int    `json:"seeders" validate:"gte=0"`
	Source      string `json:"source" validate:"max=128"`
	DownloadURL string `json:"download_url" validate:"required,download_url"`
	MediaType   string `json:"media_type" validate:"omitempty,oneof=audiobook ebook"`
}

// CreateRequestPayload is the chat collaborator's new-request callback.
type CreateRequestPayload struct {
	UserID    string           `json:"user_id" validate:"required,max=128"`
	ChannelID string           `json:"channel_id" validate:"max=128"`
	Candidate CandidatePayload `json:"candidate"`
}

// ApprovalPayload is the chat collaborator's approver-decision callback.
type ApprovalPayload struct {
	MessageHandle string `json:"message_handle" validate:"required,max=256"`
	Outcome       string `json:"outcome" validate:"required,oneof=approved denied"`
	DeciderID     string `json:"decider_id" validate:"required,max=128"`
}

// ApprovalResponse reports the effect of an approval callback.
type ApprovalResponse struct {
	Request        RequestView `json:"request"`
	AlreadyDecided bool        `json:"already_decided"`
	Queued         bool        `json:"queued"`
	Error          string      `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Fields []string `json:"fields,omitempty"`
}
