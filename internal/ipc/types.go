package ipc

import "librarian/internal/api"

// StartRequest asks the daemon to start its background services.
type StartRequest struct{}

// StartResponse reports whether the daemon started.
type StartResponse struct {
	Started bool
	Message string
}

// StopRequest asks the daemon to stop its background services.
type StopRequest struct{}

// StopResponse acknowledges a stop.
type StopResponse struct {
	Stopped bool
}

// StatusRequest asks for daemon runtime information.
type StatusRequest struct{}

// StatusResponse wraps the daemon status view.
type StatusResponse struct {
	Status api.DaemonStatus
}

// RequestListRequest filters requests by state name.
type RequestListRequest struct {
	States []string
}

// RequestListResponse returns matching requests.
type RequestListResponse struct {
	Requests []api.RequestView
}

// RequestDescribeRequest selects a request by ID.
type RequestDescribeRequest struct {
	ID string
}

// RequestDescribeResponse returns a request with its attached records.
type RequestDescribeResponse struct {
	Detail api.RequestDetail
}

// RequestBindRequest attaches an operator-supplied hash to a request whose
// submission could not be resolved.
type RequestBindRequest struct {
	ID   string
	Hash string
}

// RequestBindResponse returns the updated request.
type RequestBindResponse struct {
	Request api.RequestView
}

// DecideRequest carries an approver decision.
type DecideRequest struct {
	Payload api.ApprovalPayload
}

// DecideResponse mirrors the HTTP approval response.
type DecideResponse struct {
	Result api.ApprovalResponse
}

// JobListRequest filters organizer jobs by status name.
type JobListRequest struct {
	Statuses []string
}

// JobListResponse returns matching jobs.
type JobListResponse struct {
	Jobs []api.JobView
}

// JobClearRequest removes a failed organizer job.
type JobClearRequest struct {
	Hash string
}

// JobClearResponse acknowledges a cleared job.
type JobClearResponse struct {
	Cleared bool
}

// TranslateRequest rewrites a path through the mapping table. Direction is
// "organizer" or "torrent".
type TranslateRequest struct {
	Path      string
	Direction string
}

// TranslateResponse returns the rewritten path.
type TranslateResponse struct {
	Path string
}

// TestNotificationRequest asks the daemon to publish a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification outcome.
type TestNotificationResponse struct {
	Sent    bool
	Message string
}

// LogTailRequest reads from the daemon log. A negative Offset returns the
// last Limit lines.
type LogTailRequest struct {
	Offset     int64
	Limit      int
	Follow     bool
	WaitMillis int
	Match      string
}

// LogTailResponse returns log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string
	Offset int64
}
