package studio

import "errors"

// VeoModel - Veo 모델 이름
type VeoModel string

const (
	ModelVeoFast VeoModel = "veo-3.1-fast-generate-preview"
	ModelVeo     VeoModel = "veo-3.1-generate-preview"
)

// AspectRatio - 출력 비율
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// Resolution - 출력 해상도 (1080p 결과는 extend 불가)
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// GenerationMode - 생성 모드
type GenerationMode string

const (
	ModeTextToVideo       GenerationMode = "Text to Video"
	ModeFramesToVideo     GenerationMode = "Frames to Video"
	ModeReferencesToVideo GenerationMode = "References to Video"
	ModeExtendVideo       GenerationMode = "Extend Video"
)

// MaxReferenceImages - references 모드 최대 참조 이미지 수
const MaxReferenceImages = 3

func (m VeoModel) Valid() bool {
	return m == ModelVeoFast || m == ModelVeo
}

func (a AspectRatio) Valid() bool {
	return a == AspectLandscape || a == AspectPortrait
}

func (r Resolution) Valid() bool {
	return r == Resolution720p || r == Resolution1080p
}

// Selectable reports whether the mode can be picked in the form. Extend
// drafts are only seeded from a previous result.
func (m GenerationMode) Selectable() bool {
	return m.Valid() && m != ModeExtendVideo
}

func (m GenerationMode) Valid() bool {
	switch m {
	case ModeTextToVideo, ModeFramesToVideo, ModeReferencesToVideo, ModeExtendVideo:
		return true
	}
	return false
}

// VideoHandle is the opaque reference the Veo API returns for a generated
// video. It is handed back unchanged when extending that video.
type VideoHandle struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
}

// GenerationRequest - 영상 생성 요청 전체 파라미터
type GenerationRequest struct {
	Prompt           string          `json:"prompt"`
	Model            VeoModel        `json:"model"`
	AspectRatio      AspectRatio     `json:"aspectRatio"`
	Resolution       Resolution      `json:"resolution"`
	Mode             GenerationMode  `json:"mode"`
	StartFrame       *EncodedMedia   `json:"-"`
	EndFrame         *EncodedMedia   `json:"-"`
	ReferenceImages  []*EncodedMedia `json:"-"`
	StyleImage       *EncodedMedia   `json:"-"`
	InputVideo       *EncodedMedia   `json:"-"`
	InputVideoObject *VideoHandle    `json:"inputVideoObject,omitempty"`
	IsLooping        bool            `json:"isLooping"`
}

// DefaultRequest returns an empty text-to-video draft.
func DefaultRequest() GenerationRequest {
	return GenerationRequest{
		Model:       ModelVeoFast,
		AspectRatio: AspectLandscape,
		Resolution:  Resolution720p,
		Mode:        ModeTextToVideo,
	}
}

// Clone copies the request. Encoded media is immutable and shared; the
// reference list and the handle are copied.
func (r *GenerationRequest) Clone() *GenerationRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.ReferenceImages != nil {
		out.ReferenceImages = make([]*EncodedMedia, len(r.ReferenceImages))
		copy(out.ReferenceImages, r.ReferenceImages)
	}
	if r.InputVideoObject != nil {
		h := *r.InputVideoObject
		out.InputVideoObject = &h
	}
	return &out
}

// Result - 생성 결과 (영상 바이너리 + extend 용 핸들)
type Result struct {
	Video    []byte
	MIMEType string
	Handle   *VideoHandle
}

// AppState - 애플리케이션 상태
type AppState string

const (
	StateIdle    AppState = "idle"
	StateLoading AppState = "loading"
	StateSuccess AppState = "success"
	StateError   AppState = "error"
)

var (
	ErrBusy                 = errors.New("a generation is already in progress")
	ErrKeySelectionRequired = errors.New("an API key must be selected")
	ErrNothingToRetry       = errors.New("no previous request to retry")
	ErrCannotExtend         = errors.New("the last result cannot be extended")
	ErrFieldLocked          = errors.New("field is fixed in the current mode")
	ErrTooManyReferences    = errors.New("too many reference images (max 3)")
	ErrNotReady             = errors.New("request is not ready to submit")
	ErrInvalidValue         = errors.New("invalid value")
	ErrInvalidState         = errors.New("action not available in the current state")
	ErrEmptyMedia           = errors.New("failed to read file as base64")
	ErrWrongMediaKind       = errors.New("unexpected media type")
	ErrMediaNotAllowed      = errors.New("media is not used in the current mode")
)
