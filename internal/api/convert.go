package api

import (
	"time"

	"librarian/internal/ledger"
	"librarian/internal/monitor"
)

// FromRequest converts a ledger request to its API representation.
func FromRequest(req *ledger.Request) RequestView {
	if req == nil {
		return RequestView{}
	}
	media := req.Candidate.MediaType
	if media == "" {
		media = ledger.MediaAudiobook
	}
	return RequestView{
		ID:        req.ID,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		State:     string(req.State),
		Detail:    req.Detail,
		Candidate: CandidateView{
			Title:       req.Candidate.Title,
			Author:      req.Candidate.Author,
			SizeBytes:   req.Candidate.SizeBytes,
			Seeders:     req.Candidate.Seeders,
			Source:      req.Candidate.Source,
			DownloadURL: req.Candidate.DownloadURL,
			MediaType:   string(media),
		},
		CreatedAt: formatTime(req.CreatedAt),
		UpdatedAt: formatTime(req.UpdatedAt),
	}
}

// FromRequests converts a request slice, skipping nil entries.
func FromRequests(reqs []*ledger.Request) []RequestView {
	out := make([]RequestView, 0, len(reqs))
	for _, req := range reqs {
		if req == nil {
			continue
		}
		out = append(out, FromRequest(req))
	}
	return out
}

// FromJob converts an organizer job to its API representation.
func FromJob(job *ledger.OrganizerJob) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		Hash:          job.Hash,
		RequestID:     job.RequestID,
		Target:        job.Target,
		Name:          job.Name,
		SourcePath:    job.SourcePath,
		Status:        string(job.Status),
		OrganizedPath: job.Result.OrganizedPath,
		Error:         job.Result.Error,
		OutputTail:    job.Result.OutputTail,
		CreatedAt:     formatTime(job.CreatedAt),
		StartedAt:     formatTimePtr(job.StartedAt),
		CompletedAt:   formatTimePtr(job.CompletedAt),
	}
}

// FromJobs converts a job slice, skipping nil entries.
func FromJobs(jobs []*ledger.OrganizerJob) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromDetail converts a ledger detail aggregate.
func FromDetail(detail *ledger.Detail) RequestDetail {
	if detail == nil {
		return RequestDetail{}
	}
	dto := RequestDetail{Request: FromRequest(detail.Request)}
	if a := detail.Approval; a != nil {
		dto.Approval = &ApprovalView{
			MessageHandle: a.MessageHandle,
			Outcome:       string(a.Outcome),
			DeciderID:     a.DeciderID,
			DecidedAt:     formatTimePtr(a.DecidedAt),
			CreatedAt:     formatTime(a.CreatedAt),
		}
	}
	if h := detail.Handle; h != nil {
		dto.Handle = &HandleView{
			Hash:        h.Hash,
			Status:      string(h.Status),
			Detail:      h.Detail,
			SubmittedAt: formatTime(h.SubmittedAt),
			ResolvedAt:  formatTimePtr(h.ResolvedAt),
		}
	}
	if detail.Job != nil {
		job := FromJob(detail.Job)
		dto.Job = &job
	}
	return dto
}

// FromMonitorStatus converts the monitor loop summary.
func FromMonitorStatus(status monitor.Status) MonitorStatus {
	inFlight := status.InFlight
	if inFlight == nil {
		inFlight = []string{}
	}
	return MonitorStatus{
		Running:   status.Running,
		InFlight:  inFlight,
		LastTick:  formatTime(status.LastTick),
		LastError: status.LastError,
	}
}

// RequestCounts converts per-state counts, reporting every state.
func RequestCounts(stats map[ledger.State]int) map[string]int {
	out := make(map[string]int, len(ledger.AllStates()))
	for _, state := range ledger.AllStates() {
		out[string(state)] = stats[state]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
