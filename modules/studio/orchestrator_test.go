package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	res *Result
	err error
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []*GenerationRequest
	queue    []outcome
	block    chan struct{}
	calls    int
}

func (g *fakeGenerator) Generate(ctx context.Context, req *GenerationRequest) (*Result, error) {
	g.mu.Lock()
	g.calls++
	g.requests = append(g.requests, req.Clone())
	out := outcome{res: &Result{
		Video:    []byte(fmt.Sprintf("mp4-%d", g.calls)),
		MIMEType: "video/mp4",
		Handle:   &VideoHandle{URI: fmt.Sprintf("files/video-%d", g.calls), MIMEType: "video/mp4"},
	}}
	if len(g.queue) > 0 {
		out = g.queue[0]
		g.queue = g.queue[1:]
	}
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out.res, out.err
}

func (g *fakeGenerator) fail(err error) {
	g.mu.Lock()
	g.queue = append(g.queue, outcome{err: err})
	g.mu.Unlock()
}

func (g *fakeGenerator) lastRequests() []*GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*GenerationRequest(nil), g.requests...)
}

type fakeKeys struct {
	mu     sync.Mutex
	has    bool
	err    error
	opened int
}

func (k *fakeKeys) HasSelectedKey(ctx context.Context) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.has, k.err
}

func (k *fakeKeys) OpenSelectKey(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.opened++
	k.has = true
	k.err = nil
	return nil
}

type recordingDraft struct {
	mu    sync.Mutex
	loads []*GenerationRequest
}

func (d *recordingDraft) Load(initial *GenerationRequest) {
	d.mu.Lock()
	d.loads = append(d.loads, initial.Clone())
	d.mu.Unlock()
}

func (d *recordingDraft) last(t *testing.T) *GenerationRequest {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.loads)
	return d.loads[len(d.loads)-1]
}

type harness struct {
	gen   *fakeGenerator
	keys  *fakeKeys
	draft *recordingDraft
	urls  *ObjectURLs
	orch  *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gen:   &fakeGenerator{},
		keys:  &fakeKeys{has: true},
		draft: &recordingDraft{},
		urls:  NewObjectURLs(),
	}
	h.orch = NewOrchestrator(h.gen, h.keys, h.draft, h.urls)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) submit(t *testing.T, req *GenerationRequest) Snapshot {
	t.Helper()
	require.NoError(t, h.orch.Submit(context.Background(), req))
	h.orch.Wait()
	return h.orch.Snapshot()
}

func textRequest(prompt string, res Resolution) *GenerationRequest {
	req := DefaultRequest()
	req.Prompt = prompt
	req.Resolution = res
	return &req
}

func TestOrchestrator_SubmitSuccess(t *testing.T) {
	h := newHarness(t)

	var events []EventType
	h.orch.OnEvent(func(ev Event) { events = append(events, ev.Type) })

	snap := h.submit(t, textRequest("a red fox", Resolution720p))

	assert.Equal(t, StateSuccess, snap.State)
	assert.NotEmpty(t, snap.VideoURL)
	assert.True(t, snap.CanExtend)
	assert.Equal(t, 1, h.urls.Live())
	assert.Equal(t, []EventType{EventSubmitted, EventSucceeded}, events)

	data, mime, ok := h.urls.Lookup(snap.VideoURL[len(VideoURLPrefix):])
	require.True(t, ok)
	assert.Equal(t, "mp4-1", string(data))
	assert.Equal(t, "video/mp4", mime)
}

func TestOrchestrator_ExtendOfferedOnlyFor720p(t *testing.T) {
	h := newHarness(t)

	snap := h.submit(t, textRequest("720", Resolution720p))
	assert.Contains(t, Present(snap).Actions, ActionExtend)

	snap = h.submit(t, textRequest("1080", Resolution1080p))
	assert.False(t, snap.CanExtend)
	assert.NotContains(t, Present(snap).Actions, ActionExtend)
	assert.ErrorIs(t, h.orch.Extend(), ErrCannotExtend)
}

func TestOrchestrator_ExtendSeedsDraft(t *testing.T) {
	h := newHarness(t)

	req := DefaultRequest()
	req.Mode = ModeFramesToVideo
	req.Model = ModelVeo
	req.AspectRatio = AspectPortrait
	req.Prompt = "waves crash"
	req.StartFrame = testImage(t, "start")
	req.EndFrame = testImage(t, "end")
	req.StyleImage = testImage(t, "style")
	req.ReferenceImages = []*EncodedMedia{testImage(t, "ref")}
	h.submit(t, &req)

	require.NoError(t, h.orch.Extend())

	snap := h.orch.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.VideoURL)
	assert.Equal(t, 0, h.urls.Live())

	seed := h.draft.last(t)
	require.NotNil(t, seed)
	assert.Equal(t, ModeExtendVideo, seed.Mode)
	assert.Equal(t, "", seed.Prompt)
	assert.Equal(t, Resolution720p, seed.Resolution)
	assert.Equal(t, ModelVeo, seed.Model)
	assert.Equal(t, AspectPortrait, seed.AspectRatio)
	assert.Nil(t, seed.StartFrame)
	assert.Nil(t, seed.EndFrame)
	assert.Nil(t, seed.StyleImage)
	assert.Empty(t, seed.ReferenceImages)
	assert.False(t, seed.IsLooping)
	require.NotNil(t, seed.InputVideoObject)
	assert.Equal(t, "files/video-1", seed.InputVideoObject.URI)
	require.NotNil(t, seed.InputVideo)
	assert.Equal(t, "mp4-1", string(seed.InputVideo.Data()))
	assert.True(t, CheckReadiness(seed).Ready)
}

func TestOrchestrator_InvalidKeyFailurePromptsSelection(t *testing.T) {
	h := newHarness(t)
	h.gen.fail(errors.New("Error 400: API key expired. Reason: API_KEY_INVALID"))

	var failure *Failure
	h.orch.OnEvent(func(ev Event) {
		if ev.Type == EventFailed {
			failure = ev.Failure
		}
	})

	snap := h.submit(t, textRequest("x", Resolution720p))
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, MessageInvalidKey, snap.ErrorMessage)
	assert.True(t, snap.KeyDialog)
	require.NotNil(t, failure)
	assert.Equal(t, FailureInvalidKey, failure.Kind)
}

func TestOrchestrator_GenericFailureNoPrompt(t *testing.T) {
	h := newHarness(t)
	h.gen.fail(errors.New("deadline exceeded while polling"))

	snap := h.submit(t, textRequest("x", Resolution720p))
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "Video generation failed: deadline exceeded while polling", snap.ErrorMessage)
	assert.False(t, snap.KeyDialog)
	assert.Equal(t, []Action{ActionTryAgain}, Present(snap).Actions)
}

func TestOrchestrator_FailedRetryHidesPreviousURL(t *testing.T) {
	h := newHarness(t)
	first := h.submit(t, textRequest("first", Resolution720p))
	require.NotEmpty(t, first.VideoURL)

	h.gen.fail(errors.New("boom"))
	require.NoError(t, h.orch.Retry(context.Background()))
	h.orch.Wait()

	snap := h.orch.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Empty(t, snap.VideoURL)
	assert.Equal(t, ViewError, Present(snap).Kind)

	require.NoError(t, h.orch.TryAgain())
	assert.Equal(t, 0, h.urls.Live())
}

func TestOrchestrator_EmptyResultIsFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.queue = []outcome{{res: &Result{}}}

	snap := h.submit(t, textRequest("x", Resolution720p))
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, 0, h.urls.Live())
}

func TestOrchestrator_RetryReplaysLastRequest(t *testing.T) {
	h := newHarness(t)
	h.gen.fail(errors.New("transient"))

	req := DefaultRequest()
	req.Mode = ModeReferencesToVideo
	req.Model = ModelVeo
	req.Prompt = "a dancer"
	req.ReferenceImages = []*EncodedMedia{testImage(t, "a"), testImage(t, "b")}
	h.submit(t, &req)

	// edits to the caller's copy must not leak into the retry
	req.Prompt = "edited"
	req.ReferenceImages = req.ReferenceImages[:1]

	require.NoError(t, h.orch.Retry(context.Background()))
	h.orch.Wait()

	reqs := h.gen.lastRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0], reqs[1])
	assert.Equal(t, "a dancer", reqs[1].Prompt)
	assert.Len(t, reqs[1].ReferenceImages, 2)
	assert.Equal(t, StateSuccess, h.orch.Snapshot().State)
}

func TestOrchestrator_RetryWithoutRequest(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.orch.Retry(context.Background()), ErrNothingToRetry)
}

func TestOrchestrator_BusyWhileLoading(t *testing.T) {
	h := newHarness(t)
	h.gen.block = make(chan struct{})

	require.NoError(t, h.orch.Submit(context.Background(), textRequest("one", Resolution720p)))
	assert.Equal(t, StateLoading, h.orch.Snapshot().State)
	assert.Equal(t, ViewLoading, Present(h.orch.Snapshot()).Kind)

	assert.ErrorIs(t, h.orch.Submit(context.Background(), textRequest("two", Resolution720p)), ErrBusy)
	assert.ErrorIs(t, h.orch.NewVideo(), ErrBusy)

	close(h.gen.block)
	h.orch.Wait()
	assert.Equal(t, StateSuccess, h.orch.Snapshot().State)
	assert.Len(t, h.gen.lastRequests(), 1)
}

func TestOrchestrator_SingleLiveURLAcrossCycles(t *testing.T) {
	h := newHarness(t)

	h.submit(t, textRequest("first", Resolution720p))
	assert.Equal(t, 1, h.urls.Live())

	require.NoError(t, h.orch.Retry(context.Background()))
	h.orch.Wait()
	assert.Equal(t, 1, h.urls.Live())

	require.NoError(t, h.orch.Extend())
	assert.Equal(t, 0, h.urls.Live())

	h.submit(t, h.draft.last(t))
	assert.Equal(t, 1, h.urls.Live())

	h.gen.fail(errors.New("boom"))
	require.NoError(t, h.orch.Retry(context.Background()))
	h.orch.Wait()
	assert.LessOrEqual(t, h.urls.Live(), 1)

	require.NoError(t, h.orch.TryAgain())
	assert.Equal(t, 0, h.urls.Live())

	h.submit(t, textRequest("again", Resolution720p))
	require.NoError(t, h.orch.NewVideo())
	assert.Equal(t, 0, h.urls.Live())
}

func TestOrchestrator_MissingKeyBlocksSubmit(t *testing.T) {
	tests := []struct {
		name string
		keys *fakeKeys
	}{
		{"no key", &fakeKeys{has: false}},
		{"check fails", &fakeKeys{err: errors.New("host unavailable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			orch := NewOrchestrator(gen, tt.keys, nil, nil)
			defer orch.Close()

			err := orch.Submit(context.Background(), textRequest("x", Resolution720p))
			assert.ErrorIs(t, err, ErrKeySelectionRequired)

			snap := orch.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.True(t, snap.KeyDialog)
			assert.Nil(t, orch.LastRequest())
			assert.Empty(t, gen.lastRequests())
		})
	}
}

func TestOrchestrator_ContinueKeySelectionRetriesAfterError(t *testing.T) {
	h := newHarness(t)
	h.gen.fail(errors.New("Requested entity was not found."))

	snap := h.submit(t, textRequest("x", Resolution720p))
	require.True(t, snap.KeyDialog)
	assert.Equal(t, MessageModelNotFound, snap.ErrorMessage)

	require.NoError(t, h.orch.ContinueKeySelection(context.Background()))
	h.orch.Wait()

	assert.Equal(t, 1, h.keys.opened)
	snap = h.orch.Snapshot()
	assert.False(t, snap.KeyDialog)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Len(t, h.gen.lastRequests(), 2)
}

func TestOrchestrator_ContinueKeySelectionFromIdle(t *testing.T) {
	h := newHarness(t)
	h.keys.has = false
	h.orch.CheckInitialKey(context.Background())
	require.True(t, h.orch.Snapshot().KeyDialog)

	require.NoError(t, h.orch.ContinueKeySelection(context.Background()))
	assert.False(t, h.orch.Snapshot().KeyDialog)
	assert.Equal(t, StateIdle, h.orch.Snapshot().State)
	assert.Empty(t, h.gen.lastRequests())
}

func TestOrchestrator_TryAgainSeedsLastRequest(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.orch.TryAgain(), ErrInvalidState)

	h.gen.fail(errors.New("boom"))
	req := textRequest("a whale", Resolution1080p)
	h.submit(t, req)

	require.NoError(t, h.orch.TryAgain())
	snap := h.orch.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.ErrorMessage)
	assert.Equal(t, req, h.draft.last(t))
}

func TestOrchestrator_NewVideoResets(t *testing.T) {
	h := newHarness(t)
	h.submit(t, textRequest("x", Resolution720p))

	require.NoError(t, h.orch.NewVideo())
	assert.Equal(t, Snapshot{State: StateIdle}, h.orch.Snapshot())
	assert.Nil(t, h.orch.LastRequest())
	assert.Nil(t, h.draft.last(t))
	assert.ErrorIs(t, h.orch.Retry(context.Background()), ErrNothingToRetry)
}

func TestOrchestrator_CloseRevokesAndCancels(t *testing.T) {
	h := newHarness(t)
	h.submit(t, textRequest("x", Resolution720p))
	require.Equal(t, 1, h.urls.Live())

	h.gen.block = make(chan struct{})
	require.NoError(t, h.orch.Retry(context.Background()))

	h.orch.Close()
	assert.Equal(t, 0, h.urls.Live())
	assert.Error(t, h.orch.Submit(context.Background(), textRequest("y", Resolution720p)))
}
