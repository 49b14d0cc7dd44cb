// Package kb manages the knowledge base: document lifecycle, chunking
// and the imported-document review queue.
package kb

import (
	"strings"

	"triage_server/core/domain"
)

// Chunk sizing. Paragraphs are packed up to the target; anything over
// the hard maximum is split mid-paragraph.
const (
	chunkTargetLen = 800
	chunkMaxLen    = 1200
)

// ChunkBody splits a document body into ordered chunks. The result is
// always regenerated as a whole set; chunk ids never survive a body
// change.
func ChunkBody(docID int64, body string) []*domain.KBChunk {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var pieces []string
	var current strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > chunkTargetLen {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	var split []string
	for _, p := range pieces {
		split = append(split, splitLong(p)...)
	}

	chunks := make([]*domain.KBChunk, 0, len(split))
	for i, text := range split {
		chunks = append(chunks, &domain.KBChunk{
			DocID: docID,
			Seq:   i,
			Text:  text,
		})
	}
	return chunks
}

// splitLong breaks an oversized piece on sentence boundaries, falling
// back to a hard cut when a single sentence exceeds the maximum.
func splitLong(text string) []string {
	if len(text) <= chunkMaxLen {
		return []string{text}
	}

	var out []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > chunkMaxLen {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		for len(sentence) > chunkMaxLen {
			out = append(out, strings.TrimSpace(sentence[:chunkMaxLen]))
			sentence = sentence[chunkMaxLen:]
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			end := i + 1
			for end < len(text) && text[end] == ' ' {
				end++
			}
			out = append(out, text[start:end])
			start = end
			i = end - 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
