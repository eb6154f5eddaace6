// Package cistest provides an in-process fake of the CIS client integration API
// for tests. It records every submission and tracks per-job polling, download and
// release so lifecycle tests can assert on what the client actually sent.
package cistest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Default values served when Options leaves them empty.
const (
	DefaultAPIKeyHeader = "X-Api-Key"
	DefaultAPIKey       = "test-key"
	StatusQueued        = "Queued"
	StatusProcessing    = "Processing"
	StatusSuccessful    = "CompletedSuccessful"
	StatusFailed        = "CompletedWithErrors"
)

// Repository is served by the environment endpoint.
type Repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	WorkspaceID   string `json:"workspaceId"`
	WorkspaceName string `json:"workspaceName"`
}

// Variable is a global variable served by the environment endpoint.
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Options configures the fake. Zero values give a single repository and jobs that
// complete successfully on the third poll.
type Options struct {
	APIKeyHeader    string
	APIKey          string
	Repositories    []Repository
	GlobalVariables []Variable
	LastChanged     string
	// NoRepositories serves an empty repository list instead of the default one.
	NoRepositories bool

	// Statuses returns the status sequence for a job created from the given file
	// names. The last entry repeats once the sequence is exhausted.
	Statuses func(filenames []string) []string
	// SubmitStatus overrides the submit response code for a submission.
	SubmitStatus func(s Submission) int
	// Disposition returns the Content-Disposition header for a download; "" omits it.
	Disposition func(jobID string, s Submission) string

	EnvironmentStatus int
	DownloadStatus    int
	ReleaseStatus     int
}

// Submission is one recorded submit request.
type Submission struct {
	JobID        string
	RepositoryID string
	Filenames    []string
	Contents     map[string][]byte
	ContentTypes map[string]string
	Fields       map[string]string
	// FieldOrder lists every part name in the order received.
	FieldOrder  []string
	BinaryParts int
	TextParts   int
}

type jobState struct {
	submission Submission
	statuses   []string
	polls      int
	downloaded bool
	released   bool
}

// Server is a running fake. Close it when done.
type Server struct {
	*httptest.Server

	opts Options

	mu          sync.Mutex
	submissions []Submission
	jobs        map[string]*jobState
	requests    map[string]int
}

// New starts a plain HTTP fake.
func New(opts Options) *Server {
	s := newServer(opts)
	s.Server = httptest.NewServer(s.routes())
	return s
}

// NewTLS starts a fake behind a self-signed certificate.
func NewTLS(opts Options) *Server {
	s := newServer(opts)
	s.Server = httptest.NewTLSServer(s.routes())
	return s
}

func newServer(opts Options) *Server {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = DefaultAPIKeyHeader
	}
	if opts.APIKey == "" {
		opts.APIKey = DefaultAPIKey
	}
	if len(opts.Repositories) == 0 && !opts.NoRepositories {
		opts.Repositories = []Repository{{
			ID:            "3fa85f64-5717-4562-b3fc-2c963f66afa6",
			Name:          "Default Repository",
			Type:          "Standard",
			WorkspaceID:   "0b6c6b1e-3f2e-4a57-9a8f-2f1e1d3c4b5a",
			WorkspaceName: "Default Workspace",
		}}
	}
	if opts.Statuses == nil {
		opts.Statuses = func([]string) []string {
			return []string{StatusQueued, StatusProcessing, StatusSuccessful}
		}
	}
	return &Server{
		opts:     opts,
		jobs:     make(map[string]*jobState),
		requests: make(map[string]int),
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withAPIKey)
	r.Route("/api/v2/ClientIntegration", func(r chi.Router) {
		r.Get("/Environment", s.handleEnvironment)
		r.Post("/Submit", s.handleSubmit)
		r.Get("/Status/{id}", s.handleStatus)
		r.Get("/Download/{id}", s.handleDownload)
		r.Put("/Release/{id}", s.handleRelease)
	})
	return r
}

func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+endpointName(r.URL.Path)]++
		s.mu.Unlock()
		if r.Header.Get(s.opts.APIKeyHeader) != s.opts.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleEnvironment(w http.ResponseWriter, _ *http.Request) {
	if s.opts.EnvironmentStatus != 0 {
		http.Error(w, "environment unavailable", s.opts.EnvironmentStatus)
		return
	}
	repos := s.opts.Repositories
	if repos == nil {
		repos = []Repository{}
	}
	body := map[string]any{
		"success":         true,
		"message":         "",
		"repositories":    repos,
		"globalVariables": s.opts.GlobalVariables,
	}
	if s.opts.LastChanged != "" {
		body["lastChanged"] = s.opts.LastChanged
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	sub := Submission{
		JobID:        uuid.NewString(),
		Contents:     make(map[string][]byte),
		ContentTypes: make(map[string]string),
		Fields:       make(map[string]string),
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, "invalid part: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			http.Error(w, "read part: "+err.Error(), http.StatusBadRequest)
			return
		}
		name := part.FormName()
		sub.FieldOrder = append(sub.FieldOrder, name)
		if fn := part.FileName(); fn != "" {
			sub.BinaryParts++
			sub.Filenames = append(sub.Filenames, fn)
			sub.Contents[fn] = data
			sub.ContentTypes[fn] = part.Header.Get("Content-Type")
			continue
		}
		sub.TextParts++
		sub.Fields[name] = string(data)
	}
	sub.RepositoryID = sub.Fields["RepositoryId"]
	if sub.RepositoryID == "" || sub.BinaryParts == 0 {
		http.Error(w, "RepositoryId and at least one InputFile are required", http.StatusBadRequest)
		return
	}
	if s.opts.SubmitStatus != nil {
		if code := s.opts.SubmitStatus(sub); code != 0 && code != http.StatusOK {
			http.Error(w, "submit rejected", code)
			return
		}
	}

	statuses := s.opts.Statuses(sub.Filenames)
	if len(statuses) == 0 {
		statuses = []string{StatusSuccessful}
	}
	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	s.jobs[sub.JobID] = &jobState{
		submission: sub,
		statuses:   statuses,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, sub.JobID)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	js, ok := s.jobs[id]
	var status string
	if ok {
		status = js.statuses[min(js.polls, len(js.statuses)-1)]
		js.polls++
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                  true,
		"message":                  "",
		"jobId":                    id,
		"repositoryId":             js.submission.RepositoryID,
		"status":                   status,
		"details":                  "",
		"totalQueueTimeInSec":      0.5,
		"totalProcessingTimeInSec": 1.25,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.opts.DownloadStatus != 0 {
		http.Error(w, "download failed", s.opts.DownloadStatus)
		return
	}
	s.mu.Lock()
	js, ok := s.jobs[id]
	if ok {
		js.downloaded = true
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	cd := fmt.Sprintf("attachment; filename=%q", "result_"+id+".zip")
	if s.opts.Disposition != nil {
		cd = s.opts.Disposition(id, js.submission)
	}
	if cd != "" {
		w.Header().Set("Content-Disposition", cd)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ResultBody(id))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.opts.ReleaseStatus != 0 {
		http.Error(w, "release failed", s.opts.ReleaseStatus)
		return
	}
	s.mu.Lock()
	js, ok := s.jobs[id]
	if ok {
		js.released = true
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResultBody is the payload served for a job download.
func ResultBody(jobID string) string {
	return "processed output of job " + jobID
}

// Submissions returns a copy of every accepted submission in arrival order.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// Polls returns how many status queries the job has received.
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if js, ok := s.jobs[jobID]; ok {
		return js.polls
	}
	return 0
}

// Downloaded reports whether the job result was fetched.
func (s *Server) Downloaded(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	js, ok := s.jobs[jobID]
	return ok && js.downloaded
}

// Released reports whether the job was released.
func (s *Server) Released(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	js, ok := s.jobs[jobID]
	return ok && js.released
}

// Requests returns how many requests hit an endpoint, keyed like "GET Environment"
// or "GET Status" with job ids stripped. Unauthorized requests are counted too.
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// endpointName returns the path segment following the API root.
func endpointName(p string) string {
	const root = "/api/v2/ClientIntegration/"
	i := strings.Index(p, root)
	if i < 0 {
		return p
	}
	name, _, _ := strings.Cut(p[i+len(root):], "/")
	return name
}
