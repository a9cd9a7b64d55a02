package studio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresent(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want View
	}{
		{"idle", Snapshot{State: StateIdle}, View{Kind: ViewForm, Actions: []Action{}}},
		{"loading", Snapshot{State: StateLoading}, View{Kind: ViewLoading, Message: LoadingMessages[0], Actions: []Action{}}},
		{
			"success extendable",
			Snapshot{State: StateSuccess, VideoURL: "/api/videos/a", CanExtend: true},
			View{Kind: ViewResult, VideoURL: "/api/videos/a", Actions: []Action{ActionRetry, ActionExtend, ActionNewVideo}},
		},
		{
			"success 1080p",
			Snapshot{State: StateSuccess, VideoURL: "/api/videos/a"},
			View{Kind: ViewResult, VideoURL: "/api/videos/a", Actions: []Action{ActionRetry, ActionNewVideo}},
		},
		{
			"success without url",
			Snapshot{State: StateSuccess, CanExtend: true},
			View{Kind: ViewError, ErrorMessage: MessageMissingURL, Actions: []Action{ActionTryAgain}},
		},
		{
			"error",
			Snapshot{State: StateError, ErrorMessage: "Video generation failed: x"},
			View{Kind: ViewError, ErrorMessage: "Video generation failed: x", Actions: []Action{ActionTryAgain}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PresentAt(tt.snap, time.Now()))
		})
	}
}

func TestCanExtend(t *testing.T) {
	assert.False(t, CanExtend(nil))
	assert.True(t, CanExtend(&GenerationRequest{Resolution: Resolution720p}))
	assert.False(t, CanExtend(&GenerationRequest{Resolution: Resolution1080p}))
}

func TestPresentAt_RotatesLoadingMessages(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{State: StateLoading, LoadingSince: start}

	assert.Equal(t, LoadingMessages[0], PresentAt(snap, start.Add(time.Second)).Message)
	assert.Equal(t, LoadingMessages[1], PresentAt(snap, start.Add(4*time.Second)).Message)

	full := time.Duration(len(LoadingMessages)) * LoadingMessageInterval
	assert.Equal(t, LoadingMessages[0], PresentAt(snap, start.Add(full)).Message)
}
