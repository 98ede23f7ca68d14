package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/observability"
)

// maxConcurrentFetches bounds parallel downloads within one batch so a
// large batch cannot open an unbounded number of sockets.
const maxConcurrentFetches = 16

// ErrTooLarge marks a download aborted for exceeding the body size cap.
var ErrTooLarge = errors.New("feed body exceeds size limit")

// FetchError reports a transport failure, an HTTP error status, or a
// size-limit violation while downloading one feed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ContentRequest asks for one feed document. PublishedSince carries the
// feed's stored watermark; items older than it are filtered during parsing.
type ContentRequest struct {
	URL            string
	PublishedSince *time.Time
}

// BatchRequest is a set of content requests keyed by caller-generated
// request IDs, fetched concurrently under a shared wall-clock timeout.
type BatchRequest struct {
	Timeout  time.Duration
	Requests map[uuid.UUID]ContentRequest
}

// BatchResult maps every request ID to either a parsed result or an error.
// Each ID appears in exactly one of the two maps.
type BatchResult struct {
	Results map[uuid.UUID]*ContentResult
	Errors  map[uuid.UUID]error
}

// Fetcher downloads feed documents with bounded concurrency and a hard cap
// on body size. It performs no retries; retry policy belongs to the worker.
type Fetcher struct {
	client      *http.Client
	maxBodySize int64
}

// NewFetcher creates a Fetcher. maxBodySize caps the streamed download of
// every response body.
func NewFetcher(maxBodySize int64) *Fetcher {
	return &Fetcher{
		client:      &http.Client{},
		maxBodySize: maxBodySize,
	}
}

// FetchMany downloads and parses all requested feeds concurrently. The
// batch shares one deadline; requests still in flight when it expires are
// canceled and reported as fetch errors. FetchMany never fails as a whole.
func (f *Fetcher) FetchMany(ctx context.Context, batch BatchRequest) *BatchResult {
	ctx, cancel := context.WithTimeout(ctx, batch.Timeout)
	defer cancel()

	result := &BatchResult{
		Results: make(map[uuid.UUID]*ContentResult, len(batch.Requests)),
		Errors:  make(map[uuid.UUID]error),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrentFetches)
	)

	for requestID, request := range batch.Requests {
		wg.Add(1)
		go func(requestID uuid.UUID, request ContentRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, err := f.fetchOne(ctx, request)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[requestID] = err
				return
			}
			result.Results[requestID] = content
		}(requestID, request)
	}
	wg.Wait()

	return result
}

// fetchOne downloads a single feed and parses the buffered bytes. The
// parser never sees the URL itself, only bytes already admitted by the
// size check.
func (f *Fetcher) fetchOne(ctx context.Context, request ContentRequest) (*ContentResult, error) {
	start := time.Now()
	defer func() {
		observability.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		observability.FetchFailures.WithLabelValues("transport").Inc()
		return nil, &FetchError{URL: request.URL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		observability.FetchFailures.WithLabelValues("transport").Inc()
		return nil, &FetchError{URL: request.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		observability.FetchFailures.WithLabelValues("status").Inc()
		return nil, &FetchError{
			URL: request.URL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	// Stream at most maxBodySize+1 bytes; seeing the extra byte means the
	// body is over the cap and the download is abandoned mid-stream.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		observability.FetchFailures.WithLabelValues("transport").Inc()
		return nil, &FetchError{URL: request.URL, Err: err}
	}
	if int64(len(body)) > f.maxBodySize {
		observability.FetchFailures.WithLabelValues("too_large").Inc()
		return nil, &FetchError{URL: request.URL, Err: ErrTooLarge}
	}

	content, err := Parse(request.URL, body, request.PublishedSince)
	if err != nil {
		observability.FetchFailures.WithLabelValues("parse").Inc()
		return nil, err
	}
	return content, nil
}
