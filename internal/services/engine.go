package services

import (
	"context"
)

// RecognitionEngine is the external transcription engine. The model reference
// is opaque to the core; the engine decides how to load it.
type RecognitionEngine interface {
	Transcribe(ctx context.Context, image []byte, mimeType string, modelRef string) (text string, confidence float64, err error)
}

// TrainingSample is one correction pair fed to a fine-tune run. The image
// stays in the bucket; only its key travels to the engine.
type TrainingSample struct {
	ImageStorageKey string `json:"image_storage_key"`
	Text            string `json:"text"`
}

// TrainingEngine is the external fine-tune engine. Failures come back as
// ErrTrainingFailed with the engine's reason attached.
type TrainingEngine interface {
	FineTune(ctx context.Context, baseModelRef string, samples []TrainingSample) (newModelRef string, err error)
}
