package studio

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Generator is the external video generation service.
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*Result, error)
}

// KeySelector is the host's API key capability.
type KeySelector interface {
	HasSelectedKey(ctx context.Context) (bool, error)
	OpenSelectKey(ctx context.Context) error
}

// DraftSink receives the draft to show when the studio returns to Idle.
// A nil request means a fresh, default draft.
type DraftSink interface {
	Load(initial *GenerationRequest)
}

// EventType - 상태 변경 이벤트 종류
type EventType string

const (
	EventSubmitted EventType = "generation_submitted"
	EventSucceeded EventType = "generation_succeeded"
	EventFailed    EventType = "generation_failed"
	EventReset     EventType = "studio_reset"
	EventKeyDialog EventType = "key_dialog"
)

// Event is emitted after every state transition.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Request  *GenerationRequest
	Result   *Result
	Failure  *Failure
}

// Snapshot - 외부에 노출되는 상태
type Snapshot struct {
	State        AppState `json:"state"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	VideoURL     string   `json:"videoUrl,omitempty"`
	CanExtend    bool     `json:"canExtend"`
	KeyDialog    bool     `json:"keyDialog"`

	LoadingSince time.Time `json:"-"`
}

// Orchestrator owns the idle → loading → success|error state machine of one
// studio session. At most one generation runs at a time.
type Orchestrator struct {
	gen   Generator
	keys  KeySelector
	draft DraftSink
	urls  *ObjectURLs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	listeners    []func(Event)
	closed       bool
	state        AppState
	errorMessage string
	videoURL     string
	lastRequest  *GenerationRequest
	lastResult   *Result
	keyDialog    bool
	startedAt    time.Time
}

// NewOrchestrator wires the collaborators. keys may be nil when the host has
// no key selection capability; draft may be nil when nothing renders a form.
func NewOrchestrator(gen Generator, keys KeySelector, draft DraftSink, urls *ObjectURLs) *Orchestrator {
	if urls == nil {
		urls = NewObjectURLs()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		gen:    gen,
		keys:   keys,
		draft:  draft,
		urls:   urls,
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// OnEvent registers a listener for state transitions.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// LastRequest returns a copy of the last submitted request.
func (o *Orchestrator) LastRequest() *GenerationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRequest.Clone()
}

// CheckInitialKey raises the key dialog when no key is selected yet.
func (o *Orchestrator) CheckInitialKey(ctx context.Context) {
	if o.hasKey(ctx) {
		return
	}
	o.mu.Lock()
	o.keyDialog = true
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(Event{Type: EventKeyDialog, Snapshot: snap})
}

// Submit starts a generation for req. It returns once the studio is Loading;
// the generation itself runs in the background. Without a selected key the
// key dialog is raised and ErrKeySelectionRequired returned, state unchanged.
func (o *Orchestrator) Submit(ctx context.Context, req *GenerationRequest) error {
	if req == nil {
		return ErrNotReady
	}

	if !o.hasKey(ctx) {
		o.mu.Lock()
		o.keyDialog = true
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.emit(Event{Type: EventKeyDialog, Snapshot: snap})
		return ErrKeySelectionRequired
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return context.Canceled
	}
	if o.state == StateLoading {
		o.mu.Unlock()
		return ErrBusy
	}
	o.state = StateLoading
	o.startedAt = time.Now()
	o.errorMessage = ""
	o.lastRequest = req.Clone()
	run := o.lastRequest.Clone()
	snap := o.snapshotLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	log.Printf("🎬 [Studio] Generation submitted: mode=%s, model=%s, %s, %s",
		run.Mode, run.Model, run.AspectRatio, run.Resolution)
	o.emit(Event{Type: EventSubmitted, Snapshot: snap, Request: run.Clone()})

	go o.run(run)
	return nil
}

func (o *Orchestrator) run(req *GenerationRequest) {
	defer o.wg.Done()

	result, err := o.gen.Generate(o.ctx, req)
	if err == nil && (result == nil || len(result.Video) == 0) {
		err = errors.New("no videos were generated")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}

	if err != nil {
		log.Printf("❌ [Studio] Video generation failed: %v", err)
		failure := ClassifyError(err)
		o.state = StateError
		o.errorMessage = failure.Message
		if failure.PromptKeySelection {
			o.keyDialog = true
		}
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.emit(Event{Type: EventFailed, Snapshot: snap, Request: req, Failure: &failure})
		return
	}

	// 이전 URL 해제 후 새 URL 생성
	o.urls.Revoke(o.videoURL)
	o.videoURL = o.urls.Create(result.Video, result.MIMEType)
	o.lastResult = result
	o.state = StateSuccess
	snap := o.snapshotLocked()
	o.mu.Unlock()

	log.Printf("✅ [Studio] Video ready: %s (%d bytes)", snap.VideoURL, len(result.Video))
	o.emit(Event{Type: EventSucceeded, Snapshot: snap, Request: req, Result: result})
}

// Retry resubmits the last submitted request unchanged.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	last := o.lastRequest.Clone()
	o.mu.Unlock()

	if last == nil {
		return ErrNothingToRetry
	}
	return o.Submit(ctx, last)
}

// NewVideo clears every result and returns to an empty draft.
func (o *Orchestrator) NewVideo() error {
	o.mu.Lock()
	if o.state == StateLoading {
		o.mu.Unlock()
		return ErrBusy
	}
	o.resetLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.loadDraft(nil)
	o.emit(Event{Type: EventReset, Snapshot: snap})
	return nil
}

// TryAgain returns from an error to the form, seeded with the last request.
func (o *Orchestrator) TryAgain() error {
	o.mu.Lock()
	if o.state != StateError && !(o.state == StateSuccess && o.videoURL == "") {
		o.mu.Unlock()
		return ErrInvalidState
	}
	if o.lastRequest == nil {
		o.mu.Unlock()
		return o.NewVideo()
	}
	seed := o.lastRequest.Clone()
	o.urls.Revoke(o.videoURL)
	o.videoURL = ""
	o.state = StateIdle
	o.errorMessage = ""
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.loadDraft(seed)
	o.emit(Event{Type: EventReset, Snapshot: snap, Request: seed})
	return nil
}

// Extend seeds an extend-video draft from the last successful 720p result.
func (o *Orchestrator) Extend() error {
	o.mu.Lock()
	if o.state != StateSuccess || o.lastRequest == nil || o.lastResult == nil || o.lastResult.Handle == nil {
		o.mu.Unlock()
		return ErrInvalidState
	}
	if !CanExtend(o.lastRequest) {
		o.mu.Unlock()
		return ErrCannotExtend
	}

	handle := *o.lastResult.Handle
	seed := o.lastRequest.Clone()
	seed.Mode = ModeExtendVideo
	seed.Prompt = ""
	seed.Resolution = Resolution720p
	seed.InputVideo = NewVideoMedia("last_video.mp4", o.lastResult.MIMEType, o.lastResult.Video)
	seed.InputVideoObject = &handle
	seed.StartFrame = nil
	seed.EndFrame = nil
	seed.ReferenceImages = nil
	seed.StyleImage = nil
	seed.IsLooping = false

	o.urls.Revoke(o.videoURL)
	o.videoURL = ""
	o.state = StateIdle
	o.errorMessage = ""
	snap := o.snapshotLocked()
	o.mu.Unlock()

	log.Printf("➕ [Studio] Extend draft prepared from %s", handle.URI)
	o.loadDraft(seed)
	o.emit(Event{Type: EventReset, Snapshot: snap, Request: seed})
	return nil
}

// ContinueKeySelection closes the key dialog, asks the host to open its key
// selector and, after a failure, retries the last request.
func (o *Orchestrator) ContinueKeySelection(ctx context.Context) error {
	o.mu.Lock()
	o.keyDialog = false
	retry := o.state == StateError && o.lastRequest != nil
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(Event{Type: EventKeyDialog, Snapshot: snap})

	if o.keys != nil {
		if err := o.keys.OpenSelectKey(ctx); err != nil {
			log.Printf("⚠️  [Studio] Opening key selector failed: %v", err)
		}
	}

	if retry {
		return o.Retry(ctx)
	}
	return nil
}

// Wait blocks until the in-flight generation, if any, has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the in-flight generation and releases the live URL.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.urls.Revoke(o.videoURL)
	o.videoURL = ""
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) hasKey(ctx context.Context) bool {
	if o.keys == nil {
		return true
	}
	ok, err := o.keys.HasSelectedKey(ctx)
	if err != nil {
		log.Printf("⚠️  [Studio] Key check failed, assuming no key selected: %v", err)
		return false
	}
	return ok
}

func (o *Orchestrator) resetLocked() {
	o.urls.Revoke(o.videoURL)
	o.videoURL = ""
	o.state = StateIdle
	o.errorMessage = ""
	o.lastRequest = nil
	o.lastResult = nil
}

func (o *Orchestrator) loadDraft(seed *GenerationRequest) {
	if o.draft != nil {
		o.draft.Load(seed)
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        o.state,
		ErrorMessage: o.errorMessage,
		CanExtend:    o.state == StateSuccess && CanExtend(o.lastRequest),
		KeyDialog:    o.keyDialog,
	}
	// 이전 결과 URL 은 Success 에서만 노출
	if o.state == StateSuccess {
		s.VideoURL = o.videoURL
	}
	if o.state == StateLoading {
		s.LoadingSince = o.startedAt
	}
	return s
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	listeners := make([]func(Event), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
