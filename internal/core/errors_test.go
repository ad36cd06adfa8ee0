package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailure_IsMatchesKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "parse", err: ParseError("a.tdms", errors.New("boom")), target: ErrParse, want: true},
		{name: "parse is not submit", err: ParseError("a.tdms", errors.New("boom")), target: ErrSubmit, want: false},
		{name: "rejection", err: Reject(CodeNoData, ErrNoData, "channel %s", "c"), target: ErrRejected, want: true},
		{name: "rejection wraps reason", err: Reject(CodeNoData, ErrNoData, "channel %s", "c"), target: ErrNoData, want: true},
		{name: "wrapped reconcile", err: fmt.Errorf("ctx: %w", NewFailure(ReconciliationFailure, CodeLookupFailed, errors.New("x"))), target: ErrReconcile, want: true},
		{name: "submit", err: NewFailure(SubmissionFailure, CodeRowsFailed, errors.New("x")), target: ErrSubmit, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestParseError_Code(t *testing.T) {
	assert.Equal(t, CodeParse, ParseError("x.zip", errors.New("bad zip")).Code)

	missing := fmt.Errorf("%w: bundle has no assets.json", ErrMissingProperty)
	assert.Equal(t, CodeParseIncomplete, ParseError("x.zip", missing).Code)
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Kind: MappingRejection, Code: CodeNoData, Channel: "/'g'/'c'", Err: ErrNoData}
	assert.EqualError(t, f, "mapping failure [MAP003] /'g'/'c': no data")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "failure code", err: NewFailure(SubmissionFailure, CodeDatapointsFailed, errors.New("x")), wantCode: CodeDatapointsFailed},
		{name: "wrapped failure", err: fmt.Errorf("outer: %w", Reject(CodeInvalidValue, ErrInvalidValue, "v")), wantCode: CodeInvalidValue},
		{name: "plain error", err: errors.New("unexpected"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.err != nil {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Empty(t, KindOf(errors.New("plain")))
	assert.Equal(t, ParseFailure, KindOf(ParseError("p", errors.New("x"))))
}
