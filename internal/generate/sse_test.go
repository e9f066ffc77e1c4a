package generate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(chunks <-chan string, errs <-chan error) ([]string, error) {
	var out []string
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			out = append(out, c)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func TestSSEGeneratorStreamsLines(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.Write([]byte("{\"text\":\"a\"}\n{\"text\":\"b\"}\n"))
	}))
	defer ts.Close()

	g := NewSSEGenerator(ts.URL, "")
	chunks, errs := g.Stream(context.Background(), "prompt")

	out, err := collect(chunks, errs)
	if err != nil {
		t.Fatalf("Unexpected stream error: %v", err)
	}
	joined := strings.Join(out, "")
	if !strings.Contains(joined, `{"text":"a"}`) || !strings.Contains(joined, `{"text":"b"}`) {
		t.Errorf("Missing records in stream output: %q", joined)
	}
}

func TestSSEGeneratorReportsHTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	g := NewSSEGenerator(ts.URL, "")
	chunks, errs := g.Stream(context.Background(), "prompt")

	if _, err := collect(chunks, errs); err == nil {
		t.Error("Expected an error for a 500 response")
	}
}

func TestSSEGeneratorCancellationIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"text\":\"a\"}\n"))
	}))
	defer ts.Close()

	g := NewSSEGenerator(ts.URL, "")
	chunks, errs := g.Stream(ctx, "prompt")

	if _, err := collect(chunks, errs); err != nil {
		t.Errorf("Cancellation must not surface as an error, got %v", err)
	}
}
