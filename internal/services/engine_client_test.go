package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEngineClient(t *testing.T, baseURL string, retries int) *EngineClient {
	t.Helper()
	ec, err := NewEngineClient(newTestLogger(t), EngineClientOptions{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return ec
}

func TestTranscribe_MapsPermanentErrorsToImageInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"not a handwriting image","code":"bad_image"}}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, srv.URL, 2)
	_, _, err := ec.Transcribe(context.Background(), []byte("img"), "image/png", "models/v1")
	if !errors.Is(err, ErrImageInvalid) {
		t.Fatalf("expected ErrImageInvalid, got %v", err)
	}
}

func TestTranscribe_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"recovered","confidence":0.8}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, srv.URL, 3)
	text, conf, err := ec.Transcribe(context.Background(), []byte("img"), "image/png", "models/v1")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "recovered" || conf != 0.8 {
		t.Fatalf("unexpected response %q/%v", text, conf)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestTranscribe_NoRetryOnPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, srv.URL, 5)
	_, _, err := ec.Transcribe(context.Background(), []byte("img"), "image/png", "")
	if !errors.Is(err, ErrImageInvalid) {
		t.Fatalf("expected ErrImageInvalid, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls)
	}
}

func TestFineTune_WrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, srv.URL, 0)
	_, err := ec.FineTune(context.Background(), "models/base", []TrainingSample{{ImageStorageKey: "k", Text: "t"}})
	if !errors.Is(err, ErrTrainingFailed) {
		t.Fatalf("expected ErrTrainingFailed, got %v", err)
	}
}

func TestFineTune_RejectsEmptyModelRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model_ref":""}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, srv.URL, 0)
	_, err := ec.FineTune(context.Background(), "models/base", nil)
	if !errors.Is(err, ErrTrainingFailed) {
		t.Fatalf("expected ErrTrainingFailed for empty ref, got %v", err)
	}
}

func TestEngineHTTPErrorPermanent(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{400, true},
		{404, true},
		{422, true},
		{429, false},
		{500, false},
		{503, false},
	}
	for _, tc := range cases {
		e := &engineHTTPError{StatusCode: tc.status}
		if e.permanent() != tc.want {
			t.Errorf("status %d: want permanent=%v", tc.status, tc.want)
		}
	}
}

func TestParseActiveModelCache(t *testing.T) {
	ref, version, ok := parseActiveModelCache("3|models/u/v3")
	if !ok || ref != "models/u/v3" || version != 3 {
		t.Fatalf("unexpected parse: %q %d %v", ref, version, ok)
	}
	for _, bad := range []string{"", "x", "a|b", "1|", "|ref"} {
		if _, _, ok := parseActiveModelCache(bad); ok {
			t.Errorf("%q should not parse", bad)
		}
	}
}
