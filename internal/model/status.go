package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusKind names the active variant of a JobStatus.
type StatusKind string

const (
	StatusNone    StatusKind = ""
	StatusLoading StatusKind = "loading"
	StatusOK      StatusKind = "ok"
	StatusErr     StatusKind = "err"
)

// Progress is the payload of the loading variant.
type Progress struct {
	Loaded int64 `json:"loaded"`
	Total  int64 `json:"total"`
}

// JobStatus is a tagged union: exactly one of loading, ok or err is active.
// The zero value has no active variant and is used for "never started".
type JobStatus struct {
	kind     StatusKind
	progress Progress
	at       time.Time
	message  string
}

// Loading returns a loading status with the given byte counters.
func Loading(loaded, total int64) JobStatus {
	return JobStatus{kind: StatusLoading, progress: Progress{Loaded: loaded, Total: total}}
}

// Succeeded returns an ok status stamped with at.
func Succeeded(at time.Time) JobStatus {
	return JobStatus{kind: StatusOK, at: at.UTC()}
}

// Failed returns an err status carrying msg.
func Failed(msg string) JobStatus {
	return JobStatus{kind: StatusErr, message: msg}
}

func (s JobStatus) Kind() StatusKind   { return s.kind }
func (s JobStatus) IsZero() bool       { return s.kind == StatusNone }
func (s JobStatus) IsLoading() bool    { return s.kind == StatusLoading }
func (s JobStatus) IsOK() bool         { return s.kind == StatusOK }
func (s JobStatus) IsErr() bool        { return s.kind == StatusErr }
func (s JobStatus) IsTerminal() bool   { return s.kind == StatusOK || s.kind == StatusErr }
func (s JobStatus) Progress() Progress { return s.progress }
func (s JobStatus) Message() string    { return s.message }
func (s JobStatus) CompletedAt() time.Time {
	return s.at
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic: loading may repeat or end in ok/err, a terminal status is final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s.kind {
	case StatusNone:
		return !next.IsZero()
	case StatusLoading:
		return !next.IsZero()
	default:
		return false
	}
}

func (s JobStatus) String() string {
	switch s.kind {
	case StatusLoading:
		return fmt.Sprintf("loading(%d/%d)", s.progress.Loaded, s.progress.Total)
	case StatusOK:
		return "ok"
	case StatusErr:
		return "err: " + s.message
	default:
		return "none"
	}
}

type statusJSON struct {
	Loading *Progress `json:"loading,omitempty"`
	OK      *string   `json:"ok,omitempty"`
	Err     *string   `json:"err,omitempty"`
}

// MarshalJSON encodes the active variant as a single-key object, e.g.
// {"loading":{"loaded":1,"total":2}}, {"ok":"<RFC3339>"} or {"err":"msg"}.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case StatusLoading:
		p := s.progress
		return json.Marshal(statusJSON{Loading: &p})
	case StatusOK:
		at := s.at.Format(time.RFC3339Nano)
		return json.Marshal(statusJSON{OK: &at})
	case StatusErr:
		msg := s.message
		return json.Marshal(statusJSON{Err: &msg})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON rejects objects that carry more than one variant.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = JobStatus{}
		return nil
	}
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode job status: %w", err)
	}
	n := 0
	if raw.Loading != nil {
		n++
	}
	if raw.OK != nil {
		n++
	}
	if raw.Err != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("job status must have exactly one of loading, ok, err (got %d)", n)
	}
	switch {
	case raw.Loading != nil:
		*s = Loading(raw.Loading.Loaded, raw.Loading.Total)
	case raw.OK != nil:
		at, err := time.Parse(time.RFC3339Nano, *raw.OK)
		if err != nil {
			// Older rows stored free-form text in the ok variant.
			at = time.Time{}
		}
		*s = JobStatus{kind: StatusOK, at: at}
	default:
		*s = Failed(*raw.Err)
	}
	return nil
}
