package ledger

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

type scanner interface{ Scan(dest ...any) error }

const requestColumns = "id, user_id, channel_id, title, author, size_bytes, seeders, source, download_url, media_type, state, detail, created_at, updated_at"

func scanRequest(row scanner) (*Request, error) {
	var (
		req        Request
		channelID  sql.NullString
		author     sql.NullString
		source     sql.NullString
		mediaType  string
		state      string
		detail     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&channelID,
		&req.Candidate.Title,
		&author,
		&req.Candidate.SizeBytes,
		&req.Candidate.Seeders,
		&source,
		&req.Candidate.DownloadURL,
		&mediaType,
		&state,
		&detail,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	req.ChannelID = channelID.String
	req.Candidate.Author = author.String
	req.Candidate.Source = source.String
	req.Candidate.MediaType = MediaType(mediaType)
	req.State = State(state)
	req.Detail = detail.String
	req.CreatedAt, _ = parseTime(createdRaw)
	req.UpdatedAt, _ = parseTime(updatedRaw)
	return &req, nil
}

const approvalColumns = "request_id, message_handle, outcome, decider_id, decided_at, created_at"

func scanApproval(row scanner) (*Approval, error) {
	var (
		approval   Approval
		outcome    string
		decider    sql.NullString
		decidedRaw sql.NullString
		createdRaw string
	)
	if err := row.Scan(&approval.RequestID, &approval.MessageHandle, &outcome, &decider, &decidedRaw, &createdRaw); err != nil {
		return nil, err
	}
	approval.Outcome = Outcome(outcome)
	approval.DeciderID = decider.String
	approval.DecidedAt = parseNullTime(decidedRaw)
	approval.CreatedAt, _ = parseTime(createdRaw)
	return &approval, nil
}

const handleColumns = "request_id, hash, status, detail, submitted_at, resolved_at"

func scanHandle(row scanner) (*TorrentHandle, error) {
	var (
		handle       TorrentHandle
		hash         sql.NullString
		status       string
		detail       sql.NullString
		submittedRaw string
		resolvedRaw  sql.NullString
	)
	if err := row.Scan(&handle.RequestID, &hash, &status, &detail, &submittedRaw, &resolvedRaw); err != nil {
		return nil, err
	}
	handle.Hash = hash.String
	handle.Status = HandleStatus(status)
	handle.Detail = detail.String
	handle.SubmittedAt, _ = parseTime(submittedRaw)
	handle.ResolvedAt = parseNullTime(resolvedRaw)
	return &handle, nil
}

const jobColumns = "hash, request_id, target, name, source_path, status, organized_path, error_message, output_tail, created_at, started_at, completed_at"

func scanJob(row scanner) (*OrganizerJob, error) {
	var (
		job          OrganizerJob
		name         sql.NullString
		sourcePath   sql.NullString
		status       string
		organized    sql.NullString
		errorMessage sql.NullString
		outputTail   sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := row.Scan(
		&job.Hash,
		&job.RequestID,
		&job.Target,
		&name,
		&sourcePath,
		&status,
		&organized,
		&errorMessage,
		&outputTail,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Name = name.String
	job.SourcePath = sourcePath.String
	job.Status = JobStatus(status)
	job.Result = JobResult{
		OrganizedPath: organized.String,
		Error:         errorMessage.String,
		OutputTail:    outputTail.String,
	}
	job.CreatedAt, _ = parseTime(createdRaw)
	job.StartedAt = parseNullTime(startedRaw)
	job.CompletedAt = parseNullTime(completedRaw)
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func stateArgs(states []State) []any {
	args := make([]any, len(states))
	for i, s := range states {
		args[i] = string(s)
	}
	return args
}
