// Package chunk splits note text into bounded, overlapping segments along
// structural boundaries (headings, paragraphs, sentences). Splitting is a
// pure function of the input text and configuration, so identical input
// always yields identical chunk boundaries and identifiers. That determinism
// is what lets incremental indexing skip re-embedding unchanged content.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk is a contiguous span of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	ID    string // deterministic: docID + position + content hash
	DocID string
	Index int    // position within the document, starts at 0
	Text  string // includes overlap prefix when configured
	Start int    // byte offset of the chunk body in the source text
	End   int    // byte offset one past the chunk body
}

// Config controls chunk sizing. Sizes are measured in runes, matching how
// embedding token budgets are estimated.
type Config struct {
	MinSize    int
	MaxSize    int
	Overlap    int // runes of preceding context prepended to each chunk after the first
	Separators []string
}

const (
	defaultMinSize = 50
	defaultMaxSize = 700
	defaultOverlap = 100
)

// DefaultSeparators returns the separator priority order: section headings
// first, then paragraph breaks, line breaks, and sentence boundaries.
func DefaultSeparators() []string {
	return []string{"\n## ", "\n### ", "\n# ", "\n\n", "\n", ". ", "? ", "! ", "; "}
}

func (c Config) withDefaults() Config {
	if c.MinSize <= 0 {
		c.MinSize = defaultMinSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.Overlap < 0 {
		c.Overlap = defaultOverlap
	}
	if len(c.Separators) == 0 {
		c.Separators = DefaultSeparators()
	}
	return c
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

// Split divides text into ordered chunks for docID. Whitespace-only input
// produces no chunks.
func Split(docID, text string, cfg Config) []Chunk {
	cfg = cfg.withDefaults()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := split(text, span{0, len(text)}, cfg.Separators, cfg.MaxSize)
	pieces = mergeSmall(text, pieces, cfg.MinSize, cfg.MaxSize)
	pieces = dropBlank(text, pieces)

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		start := p.start
		if cfg.Overlap > 0 && i > 0 {
			start = extendBack(text, p.start, cfg.Overlap)
		}
		body := text[start:p.end]
		chunks = append(chunks, Chunk{
			ID:    chunkID(docID, i, body),
			DocID: docID,
			Index: i,
			Text:  body,
			Start: p.start,
			End:   p.end,
		})
	}
	return chunks
}

// chunkID derives a stable identifier from the owning document, the chunk
// position, and the chunk text. Unchanged text keeps its ID across re-index
// passes; any drift produces a new ID.
func chunkID(docID string, index int, text string) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", index)
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("%s#%d-%s", docID, index, hex.EncodeToString(h.Sum(nil))[:16])
}

// split recursively divides s until every piece fits maxSize, trying
// separators in priority order and hard-splitting as a last resort.
func split(text string, s span, seps []string, maxSize int) []span {
	if runeLen(text, s) <= maxSize {
		return []span{s}
	}
	if len(seps) == 0 {
		return hardSplit(text, s, maxSize)
	}

	segments := cutAt(text, s, seps[0])
	if len(segments) == 1 {
		// Separator absent in this span, try the next one.
		return split(text, s, seps[1:], maxSize)
	}

	// Greedily merge consecutive segments up to maxSize, recursing into any
	// single segment that is still too large.
	var out []span
	cur := span{segments[0].start, segments[0].start}
	flush := func() {
		if cur.end > cur.start {
			if runeLen(text, cur) > maxSize {
				out = append(out, split(text, cur, seps[1:], maxSize)...)
			} else {
				out = append(out, cur)
			}
		}
	}
	for _, seg := range segments {
		merged := span{cur.start, seg.end}
		if cur.end > cur.start && runeLen(text, merged) > maxSize {
			flush()
			cur = seg
			continue
		}
		cur = merged
	}
	flush()
	return out
}

// cutAt splits s at every occurrence of sep. Heading separators start the
// following segment (the heading belongs to the section it opens); all other
// separators stay attached to the preceding segment.
func cutAt(text string, s span, sep string) []span {
	headingSep := strings.HasPrefix(sep, "\n#")
	var cuts []int
	for i := s.start; i < s.end; {
		rel := strings.Index(text[i:s.end], sep)
		if rel < 0 {
			break
		}
		pos := i + rel
		if headingSep {
			// Keep the newline with the preceding segment.
			cuts = append(cuts, pos+1)
		} else {
			cuts = append(cuts, pos+len(sep))
		}
		i = pos + len(sep)
	}

	segments := make([]span, 0, len(cuts)+1)
	prev := s.start
	for _, c := range cuts {
		if c > prev && c < s.end {
			segments = append(segments, span{prev, c})
			prev = c
		}
	}
	if prev < s.end {
		segments = append(segments, span{prev, s.end})
	}
	return segments
}

// hardSplit cuts s into maxSize-rune pieces on rune boundaries.
func hardSplit(text string, s span, maxSize int) []span {
	var out []span
	start := s.start
	count := 0
	for i := s.start; i < s.end; {
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
		count++
		if count == maxSize {
			out = append(out, span{start, i})
			start = i
			count = 0
		}
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

// mergeSmall folds pieces below minSize into a neighbor, preferring the next
// piece, as long as the merge stays within maxSize.
func mergeSmall(text string, pieces []span, minSize, maxSize int) []span {
	var out []span
	i := 0
	for i < len(pieces) {
		cur := pieces[i]
		for runeLen(text, cur) < minSize && i+1 < len(pieces) {
			merged := span{cur.start, pieces[i+1].end}
			if runeLen(text, merged) > maxSize {
				break
			}
			cur = merged
			i++
		}
		out = append(out, cur)
		i++
	}

	// A trailing undersized piece merges backward when possible.
	if len(out) >= 2 {
		last := out[len(out)-1]
		if runeLen(text, last) < minSize {
			prev := out[len(out)-2]
			merged := span{prev.start, last.end}
			if runeLen(text, merged) <= maxSize {
				out = append(out[:len(out)-2], merged)
			}
		}
	}
	return out
}

func dropBlank(text string, pieces []span) []span {
	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(text[p.start:p.end]) != "" {
			out = append(out, p)
		}
	}
	return out
}

// extendBack moves start backward by up to overlap runes, never past 0.
func extendBack(text string, start, overlap int) int {
	for i := 0; i < overlap && start > 0; i++ {
		_, w := utf8.DecodeLastRuneInString(text[:start])
		start -= w
	}
	return start
}

func runeLen(text string, s span) int {
	return utf8.RuneCountInString(text[s.start:s.end])
}
