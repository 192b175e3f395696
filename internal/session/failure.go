package session

import (
	"github.com/sells-group/market-intel/internal/resilience"
)

// FailureClass is the user-facing classification of a failed request.
type FailureClass string

const (
	FailureQuota      FailureClass = "quota"
	FailureCredential FailureClass = "credential"
	FailureGeneric    FailureClass = "generic"
)

// Failure describes the last failed analysis request.
type Failure struct {
	Class     FailureClass `json:"class"`
	Message   string       `json:"message"`
	Detail    string       `json:"detail,omitempty"`
	Symbol    string       `json:"symbol"`
	RequestID string       `json:"requestId"`
}

// NewFailure classifies err for display.
func NewFailure(err error) Failure {
	f := Failure{Detail: resilience.ErrorMessage(err)}
	switch resilience.Classify(err) {
	case resilience.ClassQuota:
		f.Class = FailureQuota
		f.Message = "API quota exhausted. Select a personal API key or retry later."
	case resilience.ClassCredential:
		f.Class = FailureCredential
		f.Message = "The selected API key was not found or is invalid. Select a valid key."
	default:
		f.Class = FailureGeneric
		f.Message = "Intelligence synthesis failed. Potential protocol disruption."
	}
	return f
}
