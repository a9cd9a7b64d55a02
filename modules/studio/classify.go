package studio

import "strings"

// FailureKind - 원격 생성 실패 분류
type FailureKind string

const (
	FailureModelNotFound FailureKind = "model_not_found"
	FailureInvalidKey    FailureKind = "invalid_key"
	FailureGeneric       FailureKind = "generic"
)

const (
	MessageModelNotFound = "Model not found. This can be caused by an invalid API key or permission issues. Please check your API key."
	MessageInvalidKey    = "Your API key is invalid or lacks permissions. Please select a valid, billing-enabled API key."
)

// Failure is the user-facing outcome of a failed generation.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// PromptKeySelection asks the host to show the key dialog again.
	PromptKeySelection bool `json:"promptKeySelection"`
}

type failureRule struct {
	kind    FailureKind
	message string
	match   func(msg string) bool
}

func containsText(substr string) func(string) bool {
	return func(msg string) bool { return strings.Contains(msg, substr) }
}

func containsFold(substr string) func(string) bool {
	substr = strings.ToLower(substr)
	return func(msg string) bool { return strings.Contains(strings.ToLower(msg), substr) }
}

// Rules are checked in order; the first match wins.
//
//	"Requested entity was not found."  -> model not found, key dialog
//	"API_KEY_INVALID"                  -> invalid key, key dialog
//	"API key not valid"                -> invalid key, key dialog
//	"permission denied" (any case)     -> invalid key, key dialog
//	anything else                      -> "Video generation failed: <msg>"
var failureRules = []failureRule{
	{FailureModelNotFound, MessageModelNotFound, containsText("Requested entity was not found.")},
	{FailureInvalidKey, MessageInvalidKey, containsText("API_KEY_INVALID")},
	{FailureInvalidKey, MessageInvalidKey, containsText("API key not valid")},
	{FailureInvalidKey, MessageInvalidKey, containsFold("permission denied")},
}

// ClassifyFailure maps the error text of a remote failure to user guidance.
func ClassifyFailure(msg string) Failure {
	for _, rule := range failureRules {
		if rule.match(msg) {
			return Failure{Kind: rule.kind, Message: rule.message, PromptKeySelection: true}
		}
	}
	return Failure{Kind: FailureGeneric, Message: "Video generation failed: " + msg}
}

// ClassifyError is ClassifyFailure for an error value.
func ClassifyError(err error) Failure {
	if err == nil {
		return ClassifyFailure("An unknown error occurred.")
	}
	return ClassifyFailure(err.Error())
}
