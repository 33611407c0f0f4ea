// SPDX-License-Identifier: MPL-2.0

package pipeline

import "time"

// Stage names one step of the per-media work.
type Stage string

const (
	StageStart      Stage = "start"
	StageDownload   Stage = "download"
	StageExtract    Stage = "extract"
	StageTranscribe Stage = "transcribe"
	StageIndex      Stage = "index"
	StageSkipped    Stage = "skipped"
	StageFailed     Stage = "failed"
	StageDone       Stage = "done"
)

type (
	// Event is one progress notification from a running pipeline.
	Event struct {
		RunID   string    `json:"run_id"`
		Stage   Stage     `json:"stage"`
		MediaPK string    `json:"media_pk,omitempty"`
		Detail  string    `json:"detail,omitempty"`
		Time    time.Time `json:"time"`
	}

	// Observer receives progress events. Observers are called synchronously
	// from worker goroutines, so they must be safe for concurrent use and
	// return quickly.
	Observer func(Event)
)
