package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"librarian/internal/ledger"
	"librarian/internal/services"
)

// payloadValidate checks inbound callback payloads. Initialized in init()
// with the custom download_url rule.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New()
	_ = payloadValidate.RegisterValidation("download_url", validateDownloadURL)
}

// validateDownloadURL accepts magnet links and http(s) torrent URLs.
func validateDownloadURL(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	lower := strings.ToLower(value)
	for _, prefix := range []string{"magnet:?", "http://", "https://"} {
		if strings.HasPrefix(lower, prefix) && len(value) > len(prefix) {
			return true
		}
	}
	return false
}

// ValidationError lists the payload fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Fields, ", ")
}

// Validate checks a payload against its struct tags. Failures are marked
// services.ErrValidation and unwrap to *ValidationError.
func Validate(payload any) error {
	err := payloadValidate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "api", "validate", "payload", err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return services.Wrap(services.ErrValidation, "api", "validate", "payload", verr)
}

// fieldPath drops the struct name prefix from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return strings.ToLower(rest)
	}
	return strings.ToLower(namespace)
}

// ToRequest validates the payload and converts it to a ledger request.
func (p CreateRequestPayload) ToRequest() (*ledger.Request, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	media := ledger.MediaType(strings.ToLower(strings.TrimSpace(p.Candidate.MediaType)))
	return &ledger.Request{
		UserID:    strings.TrimSpace(p.UserID),
		ChannelID: strings.TrimSpace(p.ChannelID),
		Candidate: ledger.Candidate{
			Title:       strings.TrimSpace(p.Candidate.Title),
			Author:      strings.TrimSpace(p.Candidate.Author),
			SizeBytes:   p.Candidate.SizeBytes,
			Seeders:     p.Candidate.Seeders,
			Source:      strings.TrimSpace(p.Candidate.Source),
			DownloadURL: strings.TrimSpace(p.Candidate.DownloadURL),
			MediaType:   media,
		},
	}, nil
}

// Decision validates the payload and returns its parsed outcome.
func (p ApprovalPayload) Decision() (ledger.Outcome, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	outcome, ok := ledger.ParseOutcome(p.Outcome)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "api", "decision", fmt.Sprintf("outcome %q", p.Outcome), nil)
	}
	return outcome, nil
}
