package veo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
	"veo-studio-server/modules/studio"
)

type fakeAPI struct {
	startErr  error
	pollsLeft int
	final     *genai.GenerateVideosOperation
	data      []byte
	dlErr     error

	model     string
	src       *genai.GenerateVideosSource
	cfg       *genai.GenerateVideosConfig
	polls     int
	downloads int
	blocks    bool
}

func (f *fakeAPI) start(ctx context.Context, model string, src *genai.GenerateVideosSource, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.model, f.src, f.cfg = model, src, cfg
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &genai.GenerateVideosOperation{Name: "operations/1"}, nil
}

func (f *fakeAPI) poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	f.polls++
	if f.blocks || f.pollsLeft > 1 {
		f.pollsLeft--
		return &genai.GenerateVideosOperation{Name: op.Name}, nil
	}
	return f.final, nil
}

func (f *fakeAPI) download(ctx context.Context, video *genai.GeneratedVideo) ([]byte, error) {
	f.downloads++
	return f.data, f.dlErr
}

type staticKey string

func (k staticKey) APIKey(ctx context.Context) (string, error) { return string(k), nil }

func newTestService(api *fakeAPI, keys KeySource) (*Service, *string) {
	var usedKey string
	s := &Service{
		config: Config{PollInterval: time.Millisecond},
		keys:   keys,
		newAPI: func(ctx context.Context, apiKey string) (videoAPI, error) {
			usedKey = apiKey
			return api, nil
		},
	}
	return s, &usedKey
}

func doneWith(videos ...*genai.GeneratedVideo) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{
		Done:     true,
		Response: &genai.GenerateVideosResponse{GeneratedVideos: videos},
	}
}

func TestGenerate_Success(t *testing.T) {
	api := &fakeAPI{
		pollsLeft: 3,
		final:     doneWith(&genai.GeneratedVideo{Video: &genai.Video{URI: "files/out", MIMEType: "video/mp4"}}),
		data:      []byte("mp4"),
	}
	s, usedKey := newTestService(api, staticKey("user-key"))

	res, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	require.NoError(t, err)

	assert.Equal(t, "user-key", *usedKey)
	assert.Equal(t, "veo-3.1-fast-generate-preview", api.model)
	assert.Equal(t, 3, api.polls)
	assert.Equal(t, []byte("mp4"), res.Video)
	assert.Equal(t, "video/mp4", res.MIMEType)
	assert.Equal(t, &studio.VideoHandle{URI: "files/out", MIMEType: "video/mp4"}, res.Handle)
}

func TestGenerate_PrefersInlineBytes(t *testing.T) {
	api := &fakeAPI{
		final: doneWith(&genai.GeneratedVideo{Video: &genai.Video{URI: "files/out", VideoBytes: []byte("inline")}}),
	}
	s, _ := newTestService(api, nil)

	res, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), res.Video)
	assert.Equal(t, "video/mp4", res.MIMEType)
	assert.Zero(t, api.downloads)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
		want string
	}{
		{
			"start rejected",
			&fakeAPI{startErr: errors.New("API key not valid. Please pass a valid API key.")},
			"API key not valid. Please pass a valid API key.",
		},
		{
			"operation error",
			&fakeAPI{final: &genai.GenerateVideosOperation{Done: true, Error: map[string]any{"code": 404, "message": "Requested entity was not found."}}},
			"Requested entity was not found.",
		},
		{
			"no videos",
			&fakeAPI{final: doneWith()},
			"No videos were generated.",
		},
		{
			"filtered",
			&fakeAPI{final: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
				RAIMediaFilteredReasons: []string{"Prompt blocked."},
			}}},
			"No videos were generated. Prompt blocked.",
		},
		{
			"empty download",
			&fakeAPI{final: doneWith(&genai.GeneratedVideo{Video: &genai.Video{URI: "files/out"}})},
			"downloaded video is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(tt.api, nil)
			_, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestGenerate_ClassifiesRemoteMessages(t *testing.T) {
	api := &fakeAPI{final: &genai.GenerateVideosOperation{Done: true, Error: map[string]any{"message": "Requested entity was not found."}}}
	s, _ := newTestService(api, nil)

	_, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	f := studio.ClassifyError(err)
	assert.Equal(t, studio.FailureModelNotFound, f.Kind)
	assert.True(t, f.PromptKeySelection)
}

func TestGenerate_TimeoutStopsPolling(t *testing.T) {
	api := &fakeAPI{blocks: true}
	s, _ := newTestService(api, nil)
	s.config.Timeout = 20 * time.Millisecond

	_, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_KeyError(t *testing.T) {
	s, _ := newTestService(&fakeAPI{}, failingKeys{})
	_, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	assert.ErrorContains(t, err, "failed to resolve API key")
}

type failingKeys struct{}

func (failingKeys) APIKey(ctx context.Context) (string, error) {
	return "", errors.New("redis down")
}

func TestGenerate_InlineBytesSkipDownload(t *testing.T) {
	api := &fakeAPI{
		final: doneWith(&genai.GeneratedVideo{Video: &genai.Video{VideoBytes: []byte("inline"), MIMEType: "video/mp4"}}),
		dlErr: errors.New("download is not supported"),
	}
	s, _ := newTestService(api, nil)

	res, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	require.NoError(t, err)
	assert.Zero(t, api.downloads)
	assert.Equal(t, []byte("inline"), res.Video)
	require.NotNil(t, res.Handle)
	assert.Empty(t, res.Handle.URI)
}

func TestGenerate_InlineBytesKeepStorageURI(t *testing.T) {
	api := &fakeAPI{
		final: doneWith(&genai.GeneratedVideo{Video: &genai.Video{URI: "gs://bucket/out.mp4", VideoBytes: []byte("inline")}}),
	}
	s, _ := newTestService(api, nil)

	res, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	require.NoError(t, err)
	assert.Zero(t, api.downloads)
	assert.Equal(t, "gs://bucket/out.mp4", res.Handle.URI)
	assert.Equal(t, "video/mp4", res.Handle.MIMEType)
}

func TestGenerate_DownloadError(t *testing.T) {
	api := &fakeAPI{
		final: doneWith(&genai.GeneratedVideo{Video: &genai.Video{URI: "files/out"}}),
		dlErr: errors.New("forbidden"),
	}
	s, _ := newTestService(api, nil)

	_, err := s.Generate(context.Background(), request(studio.ModeTextToVideo))
	assert.EqualError(t, err, "failed to download video: forbidden")
	assert.Equal(t, 1, api.downloads)
}

func TestGenaiAPI_VertexDoesNotDownload(t *testing.T) {
	api := genaiAPI{vertex: true}
	_, err := api.download(context.Background(), &genai.GeneratedVideo{Video: &genai.Video{URI: "gs://bucket/out.mp4"}})
	assert.ErrorContains(t, err, "Vertex AI")
}
