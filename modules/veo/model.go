package veo

import (
	"google.golang.org/genai"
	"veo-studio-server/modules/studio"
)

// buildSource maps the request onto the prompt, image and video inputs.
func buildSource(req *studio.GenerationRequest) *genai.GenerateVideosSource {
	src := &genai.GenerateVideosSource{Prompt: req.Prompt}

	switch req.Mode {
	case studio.ModeFramesToVideo:
		src.Image = toImage(req.StartFrame)
	case studio.ModeExtendVideo:
		src.Video = sourceVideo(req)
	}
	return src
}

// buildConfig maps generation settings and the remaining media inputs.
func buildConfig(req *studio.GenerationRequest) *genai.GenerateVideosConfig {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     string(req.Resolution),
	}
	// extend 는 원본 영상 비율을 그대로 사용
	if req.Mode != studio.ModeExtendVideo {
		cfg.AspectRatio = string(req.AspectRatio)
	}

	switch req.Mode {
	case studio.ModeFramesToVideo:
		if req.EndFrame != nil {
			cfg.LastFrame = toImage(req.EndFrame)
		} else if req.IsLooping && req.StartFrame != nil {
			cfg.LastFrame = toImage(req.StartFrame)
		}
	case studio.ModeReferencesToVideo:
		for _, ref := range req.ReferenceImages {
			cfg.ReferenceImages = append(cfg.ReferenceImages, &genai.VideoGenerationReferenceImage{
				Image:         toImage(ref),
				ReferenceType: genai.VideoGenerationReferenceTypeAsset,
			})
		}
		if req.StyleImage != nil {
			cfg.ReferenceImages = append(cfg.ReferenceImages, &genai.VideoGenerationReferenceImage{
				Image:         toImage(req.StyleImage),
				ReferenceType: genai.VideoGenerationReferenceTypeStyle,
			})
		}
	}
	return cfg
}

func toImage(m *studio.EncodedMedia) *genai.Image {
	if m == nil {
		return nil
	}
	return &genai.Image{ImageBytes: m.Data(), MIMEType: m.MIMEType()}
}

// sourceVideo - extend 대상 영상
// URI 가 없는 결과 (Vertex AI inline 응답) 는 미리보기 bytes 를 그대로 보냄
func sourceVideo(req *studio.GenerationRequest) *genai.Video {
	h := req.InputVideoObject
	if h == nil {
		return nil
	}
	if h.URI != "" {
		return &genai.Video{URI: h.URI, MIMEType: h.MIMEType}
	}
	if req.InputVideo == nil {
		return nil
	}
	return &genai.Video{VideoBytes: req.InputVideo.Data(), MIMEType: req.InputVideo.MIMEType()}
}
