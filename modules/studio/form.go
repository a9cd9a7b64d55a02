package studio

import (
	"fmt"
	"strings"
	"sync"
)

// Submit-disabled reasons shown next to the generate button.
const (
	ReasonEnterPrompt       = "Please enter a prompt."
	ReasonStartFrame        = "A start frame is required."
	ReasonReferencesMissing = "Please add reference image(s) and enter a prompt."
	ReasonNeedReference     = "At least one reference image is required."
	ReasonInputVideo        = "An input video from a previous generation is required to extend."
)

// Readiness - 제출 가능 여부와 불가 사유
type Readiness struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Locks - 현재 모드에서 고정된 필드
type Locks struct {
	Model       bool `json:"model"`
	AspectRatio bool `json:"aspectRatio"`
	Resolution  bool `json:"resolution"`
}

// Form holds the draft request of one session.
type Form struct {
	mu    sync.Mutex
	draft GenerationRequest
}

func NewForm() *Form {
	return &Form{draft: DefaultRequest()}
}

// Load replaces the draft with seeded values, or resets it when initial is nil.
func (f *Form) Load(initial *GenerationRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if initial == nil {
		f.draft = DefaultRequest()
		return
	}
	d := *initial.Clone()
	def := DefaultRequest()
	if !d.Model.Valid() {
		d.Model = def.Model
	}
	if !d.AspectRatio.Valid() {
		d.AspectRatio = def.AspectRatio
	}
	if !d.Resolution.Valid() {
		d.Resolution = def.Resolution
	}
	if !d.Mode.Valid() {
		d.Mode = def.Mode
	}
	f.draft = d
	f.applyModeDefaults()
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.draft.Clone()
}

func (f *Form) SetPrompt(prompt string) {
	f.mu.Lock()
	f.draft.Prompt = prompt
	f.mu.Unlock()
}

// SetMode - 모드 변경 (모드 관련 미디어와 loop 플래그 초기화)
func (f *Form) SetMode(mode GenerationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("mode %q: %w", mode, ErrInvalidValue)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.draft.Mode = mode
	f.draft.StartFrame = nil
	f.draft.EndFrame = nil
	f.draft.ReferenceImages = nil
	f.draft.StyleImage = nil
	f.draft.InputVideo = nil
	f.draft.InputVideoObject = nil
	f.draft.IsLooping = false
	f.applyModeDefaults()
	return nil
}

func (f *Form) SetModel(model VeoModel) error {
	if !model.Valid() {
		return fmt.Errorf("model %q: %w", model, ErrInvalidValue)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks().Model {
		return fmt.Errorf("model: %w", ErrFieldLocked)
	}
	f.draft.Model = model
	return nil
}

func (f *Form) SetAspectRatio(ratio AspectRatio) error {
	if !ratio.Valid() {
		return fmt.Errorf("aspect ratio %q: %w", ratio, ErrInvalidValue)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks().AspectRatio {
		return fmt.Errorf("aspect ratio: %w", ErrFieldLocked)
	}
	f.draft.AspectRatio = ratio
	return nil
}

func (f *Form) SetResolution(res Resolution) error {
	if !res.Valid() {
		return fmt.Errorf("resolution %q: %w", res, ErrInvalidValue)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks().Resolution {
		return fmt.Errorf("resolution: %w", ErrFieldLocked)
	}
	f.draft.Resolution = res
	return nil
}

// mediaAllowedLocked - 현재 모드에서 받을 수 있는 미디어인지 확인
func (f *Form) mediaAllowedLocked(mode GenerationMode, slot string) error {
	if f.draft.Mode != mode {
		return fmt.Errorf("%s in %s: %w", slot, f.draft.Mode, ErrMediaNotAllowed)
	}
	return nil
}

func (f *Form) SetStartFrame(img *EncodedMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaAllowedLocked(ModeFramesToVideo, "start frame"); err != nil {
		return err
	}
	f.draft.StartFrame = img
	return nil
}

// RemoveStartFrame also turns looping off; a loop needs a start frame.
func (f *Form) RemoveStartFrame() {
	f.mu.Lock()
	f.draft.StartFrame = nil
	f.draft.IsLooping = false
	f.mu.Unlock()
}

// SetEndFrame turns looping off; a loop reuses the start frame as its end.
func (f *Form) SetEndFrame(img *EncodedMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaAllowedLocked(ModeFramesToVideo, "end frame"); err != nil {
		return err
	}
	f.draft.EndFrame = img
	f.draft.IsLooping = false
	return nil
}

func (f *Form) RemoveEndFrame() {
	f.mu.Lock()
	f.draft.EndFrame = nil
	f.mu.Unlock()
}

// SetLooping - start frame 만 있고 end frame 이 없을 때만 loop 가능
func (f *Form) SetLooping(looping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if looping && (f.draft.StartFrame == nil || f.draft.EndFrame != nil) {
		return fmt.Errorf("looping needs a start frame and no end frame: %w", ErrInvalidValue)
	}
	f.draft.IsLooping = looping
	return nil
}

func (f *Form) AddReferenceImage(img *EncodedMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaAllowedLocked(ModeReferencesToVideo, "reference image"); err != nil {
		return err
	}
	if len(f.draft.ReferenceImages) >= MaxReferenceImages {
		return ErrTooManyReferences
	}
	f.draft.ReferenceImages = append(f.draft.ReferenceImages, img)
	return nil
}

func (f *Form) RemoveReferenceImage(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.draft.ReferenceImages) {
		return fmt.Errorf("reference index %d: %w", index, ErrInvalidValue)
	}
	refs := make([]*EncodedMedia, 0, len(f.draft.ReferenceImages)-1)
	refs = append(refs, f.draft.ReferenceImages[:index]...)
	refs = append(refs, f.draft.ReferenceImages[index+1:]...)
	f.draft.ReferenceImages = refs
	return nil
}

func (f *Form) SetStyleImage(img *EncodedMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaAllowedLocked(ModeReferencesToVideo, "style image"); err != nil {
		return err
	}
	f.draft.StyleImage = img
	return nil
}

func (f *Form) RemoveStyleImage() {
	f.mu.Lock()
	f.draft.StyleImage = nil
	f.mu.Unlock()
}

// The input video of an extend draft only comes from a previous result
// (Orchestrator.Extend); it is never uploaded.
// RemoveInputVideo drops the preview and the handle used by the API call.
func (f *Form) RemoveInputVideo() {
	f.mu.Lock()
	f.draft.InputVideo = nil
	f.draft.InputVideoObject = nil
	f.mu.Unlock()
}

// Locks reports which settings the current mode fixes.
func (f *Form) Locks() Locks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks()
}

// Readiness reports whether the draft can be submitted and why not.
func (f *Form) Readiness() Readiness {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CheckReadiness(&f.draft)
}

// Submit returns a copy of the draft when it is ready.
func (f *Form) Submit() (*GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := CheckReadiness(&f.draft); !r.Ready {
		return nil, fmt.Errorf("%s: %w", r.Reason, ErrNotReady)
	}
	return f.draft.Clone(), nil
}

// CheckReadiness - 모드별 제출 가능 여부 계산
func CheckReadiness(req *GenerationRequest) Readiness {
	noPrompt := strings.TrimSpace(req.Prompt) == ""

	switch req.Mode {
	case ModeTextToVideo:
		if noPrompt {
			return Readiness{Reason: ReasonEnterPrompt}
		}
	case ModeFramesToVideo:
		if req.StartFrame == nil {
			return Readiness{Reason: ReasonStartFrame}
		}
	case ModeReferencesToVideo:
		noRefs := len(req.ReferenceImages) == 0
		switch {
		case noRefs && noPrompt:
			return Readiness{Reason: ReasonReferencesMissing}
		case noRefs:
			return Readiness{Reason: ReasonNeedReference}
		case noPrompt:
			return Readiness{Reason: ReasonEnterPrompt}
		}
	case ModeExtendVideo:
		if req.InputVideoObject == nil {
			return Readiness{Reason: ReasonInputVideo}
		}
	}
	return Readiness{Ready: true}
}

func (f *Form) locks() Locks {
	switch f.draft.Mode {
	case ModeReferencesToVideo:
		return Locks{Model: true, AspectRatio: true, Resolution: true}
	case ModeExtendVideo:
		return Locks{AspectRatio: true, Resolution: true}
	}
	return Locks{}
}

// references 모드는 모델/비율/해상도 고정, extend 모드는 720p 고정
func (f *Form) applyModeDefaults() {
	switch f.draft.Mode {
	case ModeReferencesToVideo:
		f.draft.Model = ModelVeo
		f.draft.AspectRatio = AspectLandscape
		f.draft.Resolution = Resolution720p
	case ModeExtendVideo:
		f.draft.Resolution = Resolution720p
	}
}
