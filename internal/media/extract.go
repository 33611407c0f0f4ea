// SPDX-License-Identifier: MPL-2.0

// Package media extracts audio tracks from downloaded videos with ffmpeg.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// defaultBin is the ffmpeg binary resolved on PATH.
	defaultBin = "ffmpeg"

	// stderrTailLines is how many trailing stderr lines are kept in error
	// messages. ffmpeg prints the failure reason last, after a long banner.
	stderrTailLines = 4
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

type (
	// Extractor converts video files to mp3 audio by shelling out to ffmpeg.
	Extractor struct {
		bin string
	}

	// ExtractorOption configures an Extractor during construction.
	ExtractorOption func(*Extractor)
)

// WithBinary overrides the ffmpeg binary name or path, primarily for tests.
func WithBinary(bin string) ExtractorOption {
	return func(e *Extractor) {
		e.bin = bin
	}
}

// NewExtractor creates an Extractor using ffmpeg from PATH.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{bin: defaultBin}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether the ffmpeg binary can be resolved.
func (e *Extractor) Available() bool {
	_, err := exec.LookPath(e.bin)
	return err == nil
}

// ExtractAudio strips the video stream from videoPath and encodes the audio
// track as an mp3 sibling file. Returns the written audio path.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	if _, err := exec.LookPath(e.bin); err != nil {
		return "", fmt.Errorf("extracting audio from %s: %w", filepath.Base(videoPath), ErrFFmpegNotFound)
	}

	audioPath := AudioPath(videoPath)

	// -y overwrites a leftover mp3 from an interrupted earlier run.
	cmd := exec.CommandContext(ctx, e.bin,
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-y", audioPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extracting audio from %s: %w: %s",
			filepath.Base(videoPath), err, stderrTail(stderr.String()))
	}

	return audioPath, nil
}

// AudioPath returns the mp3 sibling of a video file path.
func AudioPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".mp3"
}

// stderrTail returns the last few lines of ffmpeg's stderr, joined on one line.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no ffmpeg output"
	}
	lines := strings.Split(s, "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " | ")
}
