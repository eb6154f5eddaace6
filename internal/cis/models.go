package cis

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/common"
)

// JobID identifies a submitted job; it keys every status, download and release call.
type JobID = uuid.UUID

// ResponseStatus is the success/message pair every JSON response carries.
type ResponseStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RepositoryRef is a processing destination owned by a workspace.
type RepositoryRef struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	WorkspaceID   uuid.UUID `json:"workspaceId"`
	WorkspaceName string    `json:"workspaceName"`
}

// GlobalVariable is a key/value pair defined on the remote environment.
type GlobalVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Environment is the response of the environment query.
type Environment struct {
	ResponseStatus
	Repositories    []RepositoryRef  `json:"repositories"`
	GlobalVariables []GlobalVariable `json:"globalVariables"`
	LastChanged     *Timestamp       `json:"lastChanged"`
}

// JobStatus is the response of a status query.
type JobStatus struct {
	ResponseStatus
	JobID                    uuid.UUID `json:"jobId"`
	RepositoryID             uuid.UUID `json:"repositoryId"`
	Status                   string    `json:"status"`
	Details                  string    `json:"details"`
	TotalQueueTimeInSec      float64   `json:"totalQueueTimeInSec"`
	TotalProcessingTimeInSec float64   `json:"totalProcessingTimeInSec"`
}

// IsTerminal reports whether polling should stop.
func (s JobStatus) IsTerminal() bool {
	return strings.HasPrefix(s.Status, common.StatusCompletedPrefix)
}

// IsSuccessful reports whether the job completed successfully.
func (s JobStatus) IsSuccessful() bool {
	return s.Status == common.StatusCompletedSuccessful
}

// Metadata is a name/value pair attached to an uploaded file.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FileMetadata maps an input file path to its ordered metadata list.
type FileMetadata map[string][]Metadata

// DemoMetadata is attached to files that have no explicit metadata.
func DemoMetadata() []Metadata {
	return []Metadata{{Name: common.DemoMetadataName, Value: common.DemoMetadataValue}}
}

// For returns the metadata for path, falling back to DemoMetadata.
func (m FileMetadata) For(path string) []Metadata {
	if list, ok := m[path]; ok && len(list) > 0 {
		return list
	}
	return DemoMetadata()
}

// Timestamp accepts RFC 3339 as well as zone-less server timestamps.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
