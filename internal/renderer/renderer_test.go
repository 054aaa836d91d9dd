package renderer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"
)

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.OutputName != "42" {
			t.Fatalf("expected output_name 42, got %q", req.OutputName)
		}
		json.NewEncoder(w).Encode(generateResponse{VideoPath: "/tmp/out/42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	path, err := c.Generate(context.Background(), "a long job description", "42", "/tmp/out/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/tmp/out/42" {
		t.Fatalf("unexpected video path: %q", path)
	}
}

func TestGenerate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), "desc", "42", "/tmp/out/42")
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}

func TestGenerate_MissingVideoPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), "desc", "42", "/tmp/out/42")
	if err == nil {
		t.Fatal("expected an error when video_path is absent")
	}
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(generateResponse{VideoPath: "/tmp/x/master.m3u8"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Millisecond)
	_, err := c.Generate(context.Background(), "desc", "42", "/tmp/out/42")
	if err == nil {
		t.Fatal("expected a client-side timeout error")
	}
}
