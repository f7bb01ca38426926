package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s, want POST", r.Method)
		}
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "lovely" {
			t.Errorf("text %q, want lovely", req.Text)
		}
		json.NewEncoder(w).Encode(remoteResponse{Label: "positive"})
	}))
	defer srv.Close()

	remote, err := NewRemote(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	label, err := remote.Classify(context.Background(), "lovely")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if label != "positive" {
		t.Fatalf("label %q, want positive", label)
	}
}

func TestRemoteClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	remote, err := NewRemote(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if _, err := remote.Classify(context.Background(), "x"); !errors.Is(err, ErrClassificationFailed) {
		t.Fatalf("expected ErrClassificationFailed, got %v", err)
	}
}

func TestRemoteClassifyApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Error: "tokenizer crashed"})
	}))
	defer srv.Close()

	remote, err := NewRemote(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if _, err := remote.Classify(context.Background(), "x"); !errors.Is(err, ErrClassificationFailed) {
		t.Fatalf("expected ErrClassificationFailed, got %v", err)
	}
}

func TestRemoteClassifyEmptyLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{})
	}))
	defer srv.Close()

	remote, err := NewRemote(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if _, err := remote.Classify(context.Background(), "x"); !errors.Is(err, ErrClassificationFailed) {
		t.Fatalf("expected ErrClassificationFailed, got %v", err)
	}
}

func TestNewRemoteRequiresEndpoint(t *testing.T) {
	if _, err := NewRemote("  ", time.Second); err == nil {
		t.Fatal("empty endpoint should be rejected")
	}
}
