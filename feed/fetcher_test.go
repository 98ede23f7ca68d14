package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFetchManySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	f := NewFetcher(1 << 20)
	requestID := uuid.New()
	result := f.FetchMany(context.Background(), BatchRequest{
		Timeout: 5 * time.Second,
		Requests: map[uuid.UUID]ContentRequest{
			requestID: {URL: server.URL},
		},
	})

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	content, ok := result.Results[requestID]
	if !ok {
		t.Fatal("missing result for request")
	}
	if content.Title != "Example Blog" || len(content.Items) != 3 {
		t.Errorf("content = %q with %d items", content.Title, len(content.Items))
	}
}

func TestFetchManyMixedOutcomes(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()

	goodID, badID := uuid.New(), uuid.New()
	f := NewFetcher(1 << 20)
	result := f.FetchMany(context.Background(), BatchRequest{
		Timeout: 5 * time.Second,
		Requests: map[uuid.UUID]ContentRequest{
			goodID: {URL: good.URL},
			badID:  {URL: bad.URL},
		},
	})

	if _, ok := result.Results[goodID]; !ok {
		t.Error("healthy feed missing from results")
	}
	err, ok := result.Errors[badID]
	if !ok {
		t.Fatal("failing feed missing from errors")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("expected FetchError for status 404, got %v", err)
	}
}

func TestFetchManyBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	requestID := uuid.New()
	f := NewFetcher(1024)
	result := f.FetchMany(context.Background(), BatchRequest{
		Timeout: 5 * time.Second,
		Requests: map[uuid.UUID]ContentRequest{
			requestID: {URL: server.URL},
		},
	})

	err := result.Errors[requestID]
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetchManyParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	requestID := uuid.New()
	f := NewFetcher(1 << 20)
	result := f.FetchMany(context.Background(), BatchRequest{
		Timeout: 5 * time.Second,
		Requests: map[uuid.UUID]ContentRequest{
			requestID: {URL: server.URL},
		},
	})

	var parseErr *ParseError
	if !errors.As(result.Errors[requestID], &parseErr) {
		t.Errorf("expected ParseError, got %v", result.Errors[requestID])
	}
}

func TestFetchManyTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	requestID := uuid.New()
	f := NewFetcher(1 << 20)
	result := f.FetchMany(context.Background(), BatchRequest{
		Timeout: 50 * time.Millisecond,
		Requests: map[uuid.UUID]ContentRequest{
			requestID: {URL: server.URL},
		},
	})

	if _, ok := result.Errors[requestID]; !ok {
		t.Error("expected a fetch error after the batch deadline")
	}
}
