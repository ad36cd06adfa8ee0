package core

// errors.go defines the failure taxonomy of the pipeline.
//
// Every failure is recovered at the smallest unit that still lets the run
// make progress:
//
//	ParseFailure           artifact skipped, run continues
//	MappingRejection       channel skipped, artifact continues
//	ReconciliationFailure  channel skipped, no rollback of remote state
//	SubmissionFailure      channel reported, committed batches stay committed
//
// Each failure carries a stable code for log searches:
//
//	PARSE001 - Artifact could not be opened or decoded
//	PARSE002 - Artifact is missing required documents or fields
//	MAP001   - Required property is missing
//	MAP002   - Property value could not be converted
//	MAP003   - Channel has no data
//	MAP004   - Channel kind is not supported by the mapper
//	REC001   - Catalog lookup failed
//	REC002   - Catalog create failed
//	SUB001   - Datapoint batch submission failed
//	SUB002   - Sequence row submission failed

import (
	"errors"
	"fmt"
)

// FailureKind is the category of a pipeline failure.
type FailureKind string

const (
	ParseFailure          FailureKind = "parse"
	MappingRejection      FailureKind = "mapping"
	ReconciliationFailure FailureKind = "reconciliation"
	SubmissionFailure     FailureKind = "submission"
)

// Sentinels for errors.Is on a *Failure of the corresponding kind.
var (
	ErrParse     = errors.New("parse failure")
	ErrRejected  = errors.New("mapping rejected")
	ErrReconcile = errors.New("reconciliation failure")
	ErrSubmit    = errors.New("submission failure")
)

// Reasons wrapped inside failures.
var (
	ErrNoData          = errors.New("no data")
	ErrMissingProperty = errors.New("missing required property")
	ErrInvalidValue    = errors.New("invalid value")
)

// Failure codes.
const (
	CodeParse            = "PARSE001"
	CodeParseIncomplete  = "PARSE002"
	CodeMissingProperty  = "MAP001"
	CodeInvalidValue     = "MAP002"
	CodeNoData           = "MAP003"
	CodeUnsupportedKind  = "MAP004"
	CodeLookupFailed     = "REC001"
	CodeCreateFailed     = "REC002"
	CodeDatapointsFailed = "SUB001"
	CodeRowsFailed       = "SUB002"
)

// UserMessage describes a failure code for operators.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string
}

var failureMessages = map[string]UserMessage{
	CodeParse:            {Message: "Artifact could not be opened or decoded", Action: "Check that the file is a complete export"},
	CodeParseIncomplete:  {Message: "Artifact is missing required documents or fields", Action: "Re-export the trend with asset and metadata documents"},
	CodeMissingProperty:  {Message: "Required property is missing", Action: "Check the channel properties in the source tool"},
	CodeInvalidValue:     {Message: "Property value could not be converted", Action: "Check the channel value is numeric"},
	CodeNoData:           {Message: "Channel has no data", Action: "No action needed unless the channel should carry samples"},
	CodeUnsupportedKind:  {Message: "Channel kind is not supported", Action: "Report the file to the maintainers"},
	CodeLookupFailed:     {Message: "Catalog lookup failed", Action: "Check catalog connectivity and re-run"},
	CodeCreateFailed:     {Message: "Catalog create failed", Action: "Check catalog connectivity and permissions and re-run"},
	CodeDatapointsFailed: {Message: "Datapoint submission failed", Action: "Re-run the artifact; committed batches are kept"},
	CodeRowsFailed:       {Message: "Sequence row submission failed", Action: "Delete the empty sequence and re-run the artifact"},
}

var defaultMessage = UserMessage{Message: "An unexpected error occurred", Action: "Check the logs", Code: "ERR000"}

// Failure is a categorized pipeline failure.
type Failure struct {
	Kind     FailureKind
	Code     string
	Artifact string
	Channel  string
	Err      error
}

func (f *Failure) Error() string {
	switch {
	case f.Channel != "":
		return fmt.Sprintf("%s failure [%s] %s: %v", f.Kind, f.Code, f.Channel, f.Err)
	case f.Artifact != "":
		return fmt.Sprintf("%s failure [%s] %s: %v", f.Kind, f.Code, f.Artifact, f.Err)
	default:
		return fmt.Sprintf("%s failure [%s]: %v", f.Kind, f.Code, f.Err)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the sentinel of the failure's kind.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrParse:
		return f.Kind == ParseFailure
	case ErrRejected:
		return f.Kind == MappingRejection
	case ErrReconcile:
		return f.Kind == ReconciliationFailure
	case ErrSubmit:
		return f.Kind == SubmissionFailure
	}
	return false
}

// NewFailure builds a failure of the given kind and code.
func NewFailure(kind FailureKind, code string, err error) *Failure {
	return &Failure{Kind: kind, Code: code, Err: err}
}

// ParseError wraps err as a ParseFailure for artifact path.
func ParseError(path string, err error) *Failure {
	code := CodeParse
	if errors.Is(err, ErrMissingProperty) {
		code = CodeParseIncomplete
	}
	return &Failure{Kind: ParseFailure, Code: code, Artifact: path, Err: err}
}

// Reject builds a MappingRejection with a formatted reason.
func Reject(code string, reason error, format string, args ...any) *Failure {
	return &Failure{
		Kind: MappingRejection,
		Code: code,
		Err:  fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), reason),
	}
}

// CodeFor returns the failure code carried by err, or "" if err is not a
// *Failure.
func CodeFor(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// KindOf returns the failure kind carried by err, or "" if err is not a
// *Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Describe returns the operator message for err.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	code := CodeFor(err)
	msg, ok := failureMessages[code]
	if !ok {
		return defaultMessage
	}
	msg.Code = code
	return msg
}
