package ledger

import (
	"slices"
	"strings"
	"time"
)

// State is the lifecycle position of a Request.
type State string

const (
	StateCreated          State = "created"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproved         State = "approved"
	StateDenied           State = "denied"
	StateExpired          State = "expired"
	StateSubmitting       State = "submitting"
	StateSubmissionFailed State = "submission_failed"
	StateDownloading      State = "downloading"
	StateOrganizing       State = "organizing"
	StateCompleted        State = "completed"
	StateOrganizeFailed   State = "organize_failed"
)

// transitions lists the automatic edges of the lifecycle graph. The
// administrative edges organize_failed→downloading and
// submission_failed→downloading are applied only by ClearJob and ManualBind.
var transitions = map[State][]State{
	StateCreated:          {StateAwaitingApproval, StateExpired},
	StateAwaitingApproval: {StateApproved, StateDenied, StateExpired},
	StateApproved:         {StateSubmitting},
	StateSubmitting:       {StateDownloading, StateSubmissionFailed},
	StateDownloading:      {StateOrganizing},
	StateOrganizing:       {StateCompleted, StateOrganizeFailed},
}

// AllStates returns every state in lifecycle order.
func AllStates() []State {
	return []State{
		StateCreated, StateAwaitingApproval, StateApproved, StateDenied, StateExpired,
		StateSubmitting, StateSubmissionFailed, StateDownloading, StateOrganizing,
		StateCompleted, StateOrganizeFailed,
	}
}

// ParseState validates a textual state.
func ParseState(value string) (State, bool) {
	candidate := State(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(AllStates(), candidate) {
		return candidate, true
	}
	return "", false
}

// CanTransition reports whether to is directly reachable from s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// IsTerminal reports whether no automatic edge leaves s.
func (s State) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

func predecessors(to State) []State {
	var out []State
	for _, from := range AllStates() {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

func nonTerminalStates() []State {
	var out []State
	for _, s := range AllStates() {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// MediaType distinguishes the kind of book requested.
type MediaType string

const (
	MediaAudiobook MediaType = "audiobook"
	MediaEbook     MediaType = "ebook"
)

// Candidate is the user's chosen search result.
type Candidate struct {
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Seeders     int       `json:"seeders,omitempty"`
	Source      string    `json:"source,omitempty"`
	DownloadURL string    `json:"download_url"`
	MediaType   MediaType `json:"media_type,omitempty"`
}

// Key identifies the candidate for duplicate-request detection.
func (c Candidate) Key() string {
	media := c.MediaType
	if media == "" {
		media = MediaAudiobook
	}
	title := strings.Join(strings.Fields(strings.ToLower(c.Title)), " ")
	source := strings.ToLower(strings.TrimSpace(c.Source))
	return string(media) + "|" + source + "|" + title
}

// Request is one user-initiated acquisition attempt.
type Request struct {
	ID        string
	UserID    string
	ChannelID string
	Candidate Candidate
	State     State
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome is the decision recorded on an approval.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeDenied   Outcome = "denied"
	OutcomeExpired  Outcome = "expired"
)

// ParseOutcome validates an approver decision. Only approved and denied are
// accepted from callers.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(value))) {
	case OutcomeApproved:
		return OutcomeApproved, true
	case OutcomeDenied:
		return OutcomeDenied, true
	default:
		return "", false
	}
}

// Approval records the approver-facing prompt and its decision.
type Approval struct {
	RequestID     string
	MessageHandle string
	Outcome       Outcome
	DeciderID     string
	DecidedAt     *time.Time
	CreatedAt     time.Time
}

// HandleStatus tracks resolution of a submitted torrent.
type HandleStatus string

const (
	HandlePending  HandleStatus = "pending"
	HandleResolved HandleStatus = "resolved"
	HandleFailed   HandleStatus = "failed"
)

// TorrentHandle binds a request to the torrent it produced.
type TorrentHandle struct {
	RequestID   string
	Hash        string
	Status      HandleStatus
	Detail      string
	SubmittedAt time.Time
	ResolvedAt  *time.Time
}

// JobStatus is the execution state of an organizer job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ParseJobStatus validates a textual job status.
func ParseJobStatus(value string) (JobStatus, bool) {
	switch status := JobStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case JobQueued, JobRunning, JobSucceeded, JobFailed:
		return status, true
	default:
		return "", false
	}
}

// JobSpec describes a job to create.
type JobSpec struct {
	Hash       string
	RequestID  string
	Target     string
	Name       string
	SourcePath string
}

// JobResult summarizes an organizer run.
type JobResult struct {
	OrganizedPath string
	Error         string
	OutputTail    string
}

// OrganizerJob is the at-most-once post-processing record for a hash.
type OrganizerJob struct {
	Hash        string
	RequestID   string
	Target      string
	Name        string
	SourcePath  string
	Status      JobStatus
	Result      JobResult
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Detail aggregates every record attached to one request.
type Detail struct {
	Request  *Request
	Approval *Approval
	Handle   *TorrentHandle
	Job      *OrganizerJob
}

// NormalizeHash canonicalizes an info-hash for storage and comparison.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
