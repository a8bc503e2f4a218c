package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTargetTokens is the default chunk size in estimated tokens
	DefaultTargetTokens = 400

	// DefaultOverlapTokens is the default overlap between consecutive chunks
	DefaultOverlapTokens = 80

	// charsPerToken is the cheap token estimate used for sizing. It only has
	// to be monotonic and consistent, not match the embedding tokenizer.
	charsPerToken = 4
)

// Chunk is a contiguous, line-bounded slice of a document, the atomic unit
// of indexing and retrieval. StartLine and EndLine are 1-indexed and
// partition the source file: the overlap with the previous chunk is carried
// in Text only, so every source line is attributed to exactly one chunk.
type Chunk struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Ordinal   int       `json:"ordinal"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Hash      string    `json:"hash"`
	Model     string    `json:"model,omitempty"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Chunker splits text into overlapping, line-addressed chunks. Identical
// input and configuration always produce identical chunk boundaries and
// hashes, because chunk IDs derive from position and content.
type Chunker struct {
	targetTokens  int
	overlapTokens int
}

// NewChunker creates a chunker. Non-positive values fall back to defaults.
func NewChunker(targetTokens, overlapTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	if overlapTokens <= 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &Chunker{
		targetTokens:  targetTokens,
		overlapTokens: overlapTokens,
	}
}

// Chunk splits content into chunks for the given path and source tag.
// Empty or whitespace-only content yields no chunks. Lines are never split:
// a single line longer than the target size becomes its own chunk.
func (c *Chunker) Chunk(content, path, source string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	maxChars := c.targetTokens * charsPerToken
	overlapChars := c.overlapTokens * charsPerToken

	lines := strings.Split(content, "\n")
	var chunks []Chunk

	var current []string
	currentSize := 0
	attrStart := 0 // first line attributed to the current chunk, 0-indexed

	for i, line := range lines {
		lineSize := len(line) + 1

		if currentSize+lineSize > maxChars && len(current) > 0 {
			chunks = append(chunks, c.makeChunk(current, path, source, len(chunks), attrStart, i-1))

			// Seed the next chunk with trailing lines from this one, walking
			// backward until the overlap budget is spent.
			overlapSize := 0
			var overlapLines []string
			for j := len(current) - 1; j >= 0; j-- {
				if overlapSize+len(current[j]) > overlapChars {
					break
				}
				overlapLines = append([]string{current[j]}, overlapLines...)
				overlapSize += len(current[j])
			}

			current = overlapLines
			currentSize = overlapSize
			attrStart = i
		}

		current = append(current, line+"\n")
		currentSize += lineSize
	}

	if len(current) > 0 {
		chunks = append(chunks, c.makeChunk(current, path, source, len(chunks), attrStart, len(lines)-1))
	}

	return chunks
}

// makeChunk assembles a chunk from accumulated lines. startLine and endLine
// are 0-indexed here and stored 1-indexed.
func (c *Chunker) makeChunk(lines []string, path, source string, ordinal, startLine, endLine int) Chunk {
	text := strings.TrimRight(strings.Join(lines, ""), "\n")
	hash := HashText(text)

	return Chunk{
		ID:        fmt.Sprintf("%s:%s:%d:%s", source, path, ordinal, hash),
		Path:      path,
		Source:    source,
		Ordinal:   ordinal,
		StartLine: startLine + 1,
		EndLine:   endLine + 1,
		Hash:      hash,
		Text:      text,
	}
}

// EstimateTokens approximates the token count of text. Four characters per
// token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// HashText returns the first 16 hex characters of the SHA-256 digest of
// text. Used for chunk IDs and embedding-cache keys.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// HashContent returns the full SHA-256 digest of content as hex. Used for
// whole-file change detection.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
