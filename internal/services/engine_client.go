package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/utils"
)

// EngineClient talks to the model-server sidecar over HTTP. The same process
// serves transcription (loading personal model artifacts) and fine-tuning, so
// one client implements both engine contracts.
type EngineClient struct {
	log *logger.Logger

	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int

	httpClient *http.Client
}

type EngineClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

func NewEngineClient(log *logger.Logger, opts EngineClientOptions) (*EngineClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &EngineClient{
		log:        log.With("service", "EngineClient"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: hc,
	}, nil
}

func NewEngineClientFromEnv(log *logger.Logger) (*EngineClient, error) {
	timeoutSeconds := utils.GetEnvAsInt("TRAINER_TIMEOUT_SECONDS", 60, log)
	maxRetries := utils.GetEnvAsInt("TRAINER_MAX_RETRIES", 2, log)
	return NewEngineClient(log, EngineClientOptions{
		BaseURL:    utils.GetEnv("TRAINER_BASE_URL", "", log),
		APIKey:     utils.GetEnv("TRAINER_API_KEY", "", log),
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
		MaxRetries: maxRetries,
	})
}

type transcribeRequest struct {
	ModelRef string `json:"model_ref"`
	MimeType string `json:"mime_type"`
	ImageB64 string `json:"image_b64"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (ec *EngineClient) Transcribe(ctx context.Context, image []byte, mimeType string, modelRef string) (string, float64, error) {
	req := transcribeRequest{
		ModelRef: modelRef,
		MimeType: mimeType,
		ImageB64: base64.StdEncoding.EncodeToString(image),
	}
	var resp transcribeResponse
	if err := ec.postJSON(ctx, "/v1/transcribe", req, &resp); err != nil {
		var he *engineHTTPError
		if errors.As(err, &he) && he.permanent() {
			return "", 0, fmt.Errorf("%w: %s", ErrImageInvalid, he.Message)
		}
		return "", 0, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return resp.Text, resp.Confidence, nil
}

type fineTuneRequest struct {
	BaseModelRef string           `json:"base_model_ref"`
	Samples      []TrainingSample `json:"samples"`
}

type fineTuneResponse struct {
	ModelRef string `json:"model_ref"`
}

func (ec *EngineClient) FineTune(ctx context.Context, baseModelRef string, samples []TrainingSample) (string, error) {
	req := fineTuneRequest{BaseModelRef: baseModelRef, Samples: samples}
	var resp fineTuneResponse
	if err := ec.postJSON(ctx, "/v1/fine-tune", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}
	if strings.TrimSpace(resp.ModelRef) == "" {
		return "", fmt.Errorf("%w: engine returned empty model ref", ErrTrainingFailed)
	}
	return resp.ModelRef, nil
}

func (ec *EngineClient) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	attempts := ec.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, ec.timeout)
		httpReq, reqErr := http.NewRequestWithContext(reqCtx, http.MethodPost, ec.baseURL+path, bytes.NewReader(body))
		if reqErr != nil {
			cancel()
			return reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if ec.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+ec.apiKey)
		}

		httpResp, doErr := ec.httpClient.Do(httpReq)
		if doErr != nil {
			cancel()
			lastErr = doErr
			continue
		}
		raw, readErr := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		cancel()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			return json.Unmarshal(raw, out)
		}

		he := parseEngineHTTPError(httpResp.StatusCode, raw)
		if he.permanent() {
			return he
		}
		lastErr = he
	}
	return lastErr
}

type engineHTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Body       string
}

func (e *engineHTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("http error: status=%d code=%s message=%s", e.StatusCode, strings.TrimSpace(e.Code), msg)
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

// permanent reports whether retrying the same request can ever help.
func (e *engineHTTPError) permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func parseEngineHTTPError(status int, raw []byte) *engineHTTPError {
	body := strings.TrimSpace(string(raw))

	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code,omitempty"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Error.Message) != "" {
		return &engineHTTPError{
			StatusCode: status,
			Message:    strings.TrimSpace(env.Error.Message),
			Code:       strings.TrimSpace(env.Error.Code),
			Body:       body,
		}
	}
	return &engineHTTPError{StatusCode: status, Body: body}
}
