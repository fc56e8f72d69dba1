package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/yungbote/manuscript-backend/internal/logger"
)

// visionEngine is the bootstrap RecognitionEngine used when no model-server
// sidecar is deployed: GCP Vision handwriting OCR. It can only serve the
// shared base model; personal refs fall through to the same detection with a
// warning, which is acceptable because deployments that train personal models
// run the HTTP engine instead.
type visionEngine struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
	baseModelRef string
}

func NewVisionEngine(log *logger.Logger, baseModelRef string) (RecognitionEngine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "VisionEngine")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()

	var (
		vClient *vision.ImageAnnotatorClient
		err     error
	)
	if creds != "" {
		vClient, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(creds))
	} else {
		// ADC (GKE/Cloud Run w/ attached SA)
		vClient, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &visionEngine{
		log:          slog,
		visionClient: vClient,
		baseModelRef: baseModelRef,
	}, nil
}

func (ve *visionEngine) Transcribe(ctx context.Context, image []byte, mimeType string, modelRef string) (string, float64, error) {
	if len(image) == 0 {
		return "", 0, fmt.Errorf("%w: empty image", ErrImageInvalid)
	}
	if modelRef != "" && modelRef != ve.baseModelRef {
		ve.log.Warn("Vision engine cannot load personal models, serving base detection", "model_ref", modelRef)
	}

	resp, err := ve.visionClient.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", 0, mapVisionError(err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", 0, nil
	}
	res := resp.GetResponses()[0]
	if rpcErr := res.GetError(); rpcErr != nil {
		switch codes.Code(rpcErr.GetCode()) {
		case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
			return "", 0, fmt.Errorf("%w: %s", ErrImageInvalid, rpcErr.GetMessage())
		}
		return "", 0, fmt.Errorf("%w: %s", ErrEngineUnavailable, rpcErr.GetMessage())
	}
	annotation := res.GetFullTextAnnotation()
	if annotation == nil {
		return "", 0, nil
	}

	var confSum float64
	var confCount int
	for _, page := range annotation.GetPages() {
		confSum += float64(page.GetConfidence())
		confCount++
	}
	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}

	return annotation.GetText(), confidence, nil
}

func mapVisionError(err error) error {
	st, ok := grpcstatus.FromError(err)
	if ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
			return fmt.Errorf("%w: %s", ErrImageInvalid, st.Message())
		}
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}
