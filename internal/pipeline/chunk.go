// SPDX-License-Identifier: MPL-2.0

package pipeline

import "fmt"

// DefaultChunkSize is the transcript window size used when none is configured.
const DefaultChunkSize = 500

// ChunkText splits text into consecutive windows of at most size runes. The
// last window keeps the remainder. Empty text yields no chunks.
func ChunkText(text string, size int) []string {
	if size < 1 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		chunks = append(chunks, string(runes[i:min(i+size, len(runes))]))
	}
	return chunks
}

// ChunkID renders the stable identifier of chunk i of a media, "<pk>_chunk_<i>".
// Identifiers are what makes re-indexing the same media idempotent.
func ChunkID(pk string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", pk, i)
}
