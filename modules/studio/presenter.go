package studio

import "time"

// MessageMissingURL is shown when a generation succeeded without a playable URL.
const MessageMissingURL = "Video generated, but URL is missing. Please try again."

// Action - 결과 화면에서 가능한 후속 작업
type Action string

const (
	ActionRetry    Action = "retry"
	ActionNewVideo Action = "new"
	ActionExtend   Action = "extend"
	ActionTryAgain Action = "try-again"
)

// ViewKind - 현재 화면
type ViewKind string

const (
	ViewForm    ViewKind = "form"
	ViewLoading ViewKind = "loading"
	ViewResult  ViewKind = "result"
	ViewError   ViewKind = "error"
)

// View is what the front end renders for a snapshot.
type View struct {
	Kind         ViewKind `json:"kind"`
	VideoURL     string   `json:"videoUrl,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Message      string   `json:"message,omitempty"`
	Actions      []Action `json:"actions"`
}

// LoadingMessages rotate while a generation is in flight.
var LoadingMessages = []string{
	"Warming up the digital director...",
	"Gathering pixels and photons...",
	"Storyboarding your vision...",
	"Consulting with the AI muse...",
	"Rendering the first scene...",
	"Applying cinematic lighting...",
	"This can take a few minutes, hang tight!",
	"Adding a touch of movie magic...",
	"Composing the final cut...",
	"Polishing the masterpiece...",
	"Teaching the AI to say 'I'll be back'...",
	"Checking for digital dust bunnies...",
	"Calibrating the irony sensors...",
	"Untangling the timelines...",
	"Enhancing to ludicrous speed...",
	"Don't worry, the pixels are friendly.",
	"Harvesting nano banana stems...",
	"Praying to the Gemini star...",
	"Starting a draft for your oscar speech...",
}

// LoadingMessageInterval is how long each loading message is shown.
const LoadingMessageInterval = 3 * time.Second

// LoadingMessage returns the message shown after elapsed time in Loading.
func LoadingMessage(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	i := int(elapsed/LoadingMessageInterval) % len(LoadingMessages)
	return LoadingMessages[i]
}

// CanExtend reports whether a result of req may be extended.
// The API cannot extend 1080p outputs.
func CanExtend(req *GenerationRequest) bool {
	return req != nil && req.Resolution == Resolution720p
}

// Present maps a snapshot to the view and its follow-up actions.
func Present(s Snapshot) View {
	return PresentAt(s, time.Now())
}

// PresentAt is Present with an explicit clock.
func PresentAt(s Snapshot, now time.Time) View {
	switch s.State {
	case StateLoading:
		var elapsed time.Duration
		if !s.LoadingSince.IsZero() {
			elapsed = now.Sub(s.LoadingSince)
		}
		return View{Kind: ViewLoading, Message: LoadingMessage(elapsed), Actions: []Action{}}
	case StateSuccess:
		if s.VideoURL == "" {
			return View{Kind: ViewError, ErrorMessage: MessageMissingURL, Actions: []Action{ActionTryAgain}}
		}
		actions := []Action{ActionRetry}
		if s.CanExtend {
			actions = append(actions, ActionExtend)
		}
		actions = append(actions, ActionNewVideo)
		return View{Kind: ViewResult, VideoURL: s.VideoURL, Actions: actions}
	case StateError:
		return View{Kind: ViewError, ErrorMessage: s.ErrorMessage, Actions: []Action{ActionTryAgain}}
	}
	return View{Kind: ViewForm, Actions: []Action{}}
}
