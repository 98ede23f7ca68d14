package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/auth"
	"github.com/itskum47/FeedForge/idempotency"
	"github.com/itskum47/FeedForge/middleware"
	"github.com/itskum47/FeedForge/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var errValidation = errors.New("validation failed")

// API wires the HTTP handlers to the service.
type API struct {
	service     *Service
	idempotency *idempotency.Store
	hub         *StatusHub
}

func NewAPI(service *Service, idempotencyStore *idempotency.Store, hub *StatusHub) *API {
	return &API{
		service:     service,
		idempotency: idempotencyStore,
		hub:         hub,
	}
}

// Register installs all routes on the mux. Authenticated routes are wrapped
// with the auth middleware and the shared rate limiter here so main only
// deals with the outermost CORS layer.
func (a *API) Register(mux *http.ServeMux, limiter *middleware.TokenBucketLimiter) {
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(middleware.RateLimit(limiter)(h))
	}

	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/token", a.handleToken)
	mux.Handle("/feeds", authed(a.handleFeeds))
	mux.Handle("/feeds/", authed(a.handleFeedByID))
	mux.Handle("/posts", authed(a.handlePosts))
	mux.Handle("/posts/", authed(a.handlePostByID))
	mux.Handle("/jobs/status", authed(a.handleJobStatus))
	mux.Handle("/jobs/stream", authed(a.handleJobStream))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToken mints a JWT for the supplied user UID, or a fresh one when
// the body is empty. There is no user registry; identity is the UID itself.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userUID := uuid.New()
	var body struct {
		UserUID string `json:"user_uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.UserUID != "" {
		parsed, err := uuid.Parse(body.UserUID)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid user_uid", errValidation))
			return
		}
		userUID = parsed
	}

	token, err := auth.GenerateToken(userUID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_uid": userUID.String(),
		"token":    token,
	})
}

func (a *API) handleFeeds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listFeeds(w, r)
	case http.MethodPost:
		a.withIdempotency(a.subscribeFeed)(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) listFeeds(w http.ResponseWriter, r *http.Request) {
	userUID, err := middleware.UserUIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, offset := pagination(r)

	feeds, err := a.service.ListFeeds(r.Context(), userUID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (a *API) subscribeFeed(w http.ResponseWriter, r *http.Request) {
	userUID, err := middleware.UserUIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", errValidation))
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" || (!strings.HasPrefix(body.URL, "http://") && !strings.HasPrefix(body.URL, "https://")) {
		writeError(w, fmt.Errorf("%w: url must be an absolute http(s) URL", errValidation))
		return
	}

	f, err := a.service.SubscribeFeed(r.Context(), userUID, body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	// 202: the subscription exists but its first refresh is asynchronous.
	writeJSON(w, http.StatusAccepted, f)
}

// handleFeedByID dispatches /feeds/{id}/{follow|unfollow|refresh}.
func (a *API) handleFeedByID(w http.ResponseWriter, r *http.Request) {
	userUID, err := middleware.UserUIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, action, err := parseIDPath(r.URL.Path, "/feeds/")
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case action == "follow" && r.Method == http.MethodPut:
		err = a.service.FollowFeed(r.Context(), userUID, id)
	case action == "unfollow" && r.Method == http.MethodDelete:
		err = a.service.UnfollowFeed(r.Context(), userUID, id)
	case action == "refresh" && r.Method == http.MethodPost:
		a.withIdempotency(func(w http.ResponseWriter, r *http.Request) {
			if err := a.service.RefreshFeed(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		})(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userUID, err := middleware.UserUIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter := store.FeedPostFiltering{}
	q := r.URL.Query()
	if v := q.Get("feed_id"); v != "" {
		feedID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid feed_id", errValidation))
			return
		}
		filter.FeedID = &feedID
	}
	// Filters apply to the calling user only; there is no cross-user query.
	if q.Get("followed") == "true" {
		filter.FollowedBy = &userUID
	}
	switch q.Get("read") {
	case "true":
		filter.ReadBy = &userUID
	case "false":
		filter.NotReadBy = &userUID
	}

	limit, offset := pagination(r)
	posts, err := a.service.ListPosts(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// handlePostByID dispatches /posts/{id}/{read|unread}.
func (a *API) handlePostByID(w http.ResponseWriter, r *http.Request) {
	userUID, err := middleware.UserUIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, action, err := parseIDPath(r.URL.Path, "/posts/")
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case action == "read" && r.Method == http.MethodPut:
		err = a.service.ReadPost(r.Context(), userUID, id)
	case action == "unread" && r.Method == http.MethodDelete:
		err = a.service.UnreadPost(r.Context(), userUID, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.GetJobStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleJobStream(w http.ResponseWriter, r *http.Request) {
	a.hub.ServeHTTP(w, r)
}

// withIdempotency replays cached responses for requests carrying an
// Idempotency-Key header. Requests without the header execute normally.
func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}
		// Scope the key to the user so clients cannot replay each other.
		if uid, err := middleware.UserUIDFromContext(r.Context()); err == nil {
			key = uid.String() + ":" + key
		}

		resp, err := a.idempotency.Execute(r.Context(), key, func(ctx context.Context) (*idempotency.Response, error) {
			rec := newRecorder()
			next(rec, r.WithContext(ctx))
			return &idempotency.Response{StatusCode: rec.status, Body: rec.body}, nil
		})
		if err != nil {
			log.Printf("api: idempotency for key %q: %v", key, err)
			next(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
	}
}

// recorder buffers a handler's response so it can be cached before being
// replayed to the client.
type recorder struct {
	header http.Header
	status int
	body   []byte
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) { r.status = code }

func (r *recorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

// parseIDPath splits "<prefix>{id}/{action}" into its parts.
func parseIDPath(path, prefix string) (int64, string, error) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("%w: expected %s{id}/{action}", errValidation, prefix)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid id %q", errValidation, parts[0])
	}
	return id, parts[1], nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxPageSize)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrNoFeed),
		errors.Is(err, store.ErrNoPost):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("api: internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
