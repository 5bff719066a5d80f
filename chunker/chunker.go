// Package chunker slices a document's page text into indexable chunks
// along its table of contents: every outline entry owns the pages up to
// the next entry at the same or a higher level, and oversized section
// text is split on paragraph boundaries under a token and character
// budget.
package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"manualqa/types"
)

const (
	DefaultMaxTokens = 480
	DefaultMaxChars  = 2000

	encodingName = "cl100k_base"
)

type Options struct {
	// MaxTokens bounds a chunk by tokenizer count. Zero disables the
	// token budget and leaves only the character bound.
	MaxTokens int
	// MaxChars bounds a chunk by rune count and is the hard-cut width
	// for paragraphs that exceed the budget on their own.
	MaxChars int
}

// Section is a resolved outline entry: its full path and the page range
// it owns.
type Section struct {
	Path     string
	Level    int
	PageFrom int
	PageTo   int
}

type Chunker struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	maxChars  int
}

// New builds a chunker. When the tokenizer data is unavailable (offline
// first run), token counts fall back to a word-based estimate.
func New(opts Options) *Chunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MaxTokens < 0 {
		opts.MaxTokens = 0
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		enc = nil
	}
	return &Chunker{
		enc:       enc,
		maxTokens: opts.MaxTokens,
		maxChars:  opts.MaxChars,
	}
}

// CountTokens measures text against the token budget.
func (c *Chunker) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens approximates English text at roughly 1.33 tokens per
// word.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Sections resolves the outline into page ranges. An entry extends to the
// page before the next entry at its level or higher, or to the last page;
// an explicit page_to on the entry wins. Section paths stack ancestor
// titles joined with " > ".
func Sections(toc []types.TOCEntry, pageCount int) []Section {
	sections := make([]Section, 0, len(toc))
	stack := []string{}

	for i, e := range toc {
		lvl := e.Level
		if lvl < 1 {
			lvl = 1
		}

		end := pageCount
		for j := i + 1; j < len(toc); j++ {
			if toc[j].Level <= lvl {
				end = max(toc[j].PageFrom-1, e.PageFrom)
				break
			}
		}
		if e.PageTo != nil {
			end = *e.PageTo
		}
		if end < e.PageFrom {
			end = e.PageFrom
		}

		if len(stack) < lvl {
			stack = append(stack, make([]string, lvl-len(stack))...)
		}
		stack = stack[:lvl]
		stack[lvl-1] = strings.TrimSpace(e.Title)

		parts := make([]string, 0, lvl)
		for _, s := range stack {
			if s != "" {
				parts = append(parts, s)
			}
		}

		sections = append(sections, Section{
			Path:     strings.Join(parts, " > "),
			Level:    lvl,
			PageFrom: e.PageFrom,
			PageTo:   end,
		})
	}
	return sections
}

// ChunkDocument turns stored TOC and pages into chunks with a running
// zero-based chunk index across the whole document. Without a TOC the
// entire document becomes one unnamed section.
func (c *Chunker) ChunkDocument(docID int64, toc []types.TOCEntry, pages []types.Page) []types.Chunk {
	if len(pages) == 0 {
		return nil
	}

	pageMap := make(map[int]string, len(pages))
	pageCount := 0
	for _, p := range pages {
		pageMap[p.PageNumber] = p.Content
		if p.PageNumber > pageCount {
			pageCount = p.PageNumber
		}
	}

	sections := Sections(toc, pageCount)
	if len(sections) == 0 {
		sections = []Section{{Path: "", Level: 1, PageFrom: 1, PageTo: pageCount}}
	}

	var chunks []types.Chunk
	nextIndex := 0
	for _, sec := range sections {
		var parts []string
		for p := sec.PageFrom; p <= sec.PageTo; p++ {
			if content, ok := pageMap[p]; ok {
				parts = append(parts, content)
			}
		}
		text := strings.TrimSpace(strings.Join(parts, "\n\n"))
		if text == "" {
			continue
		}

		for _, piece := range c.split(text) {
			from, to := sec.PageFrom, sec.PageTo
			chunks = append(chunks, types.Chunk{
				DocumentID:  docID,
				ChunkIndex:  nextIndex,
				SectionPath: sec.Path,
				PageFrom:    &from,
				PageTo:      &to,
				Content:     piece,
				TokenCount:  c.CountTokens(piece),
			})
			nextIndex++
		}
	}
	return chunks
}

func (c *Chunker) over(text string) bool {
	if len([]rune(text)) > c.maxChars {
		return true
	}
	return c.maxTokens > 0 && c.CountTokens(text) > c.maxTokens
}

// split packs paragraphs (double-newline separated) into pieces under the
// budget. A paragraph over the budget by itself is hard-cut at the
// character bound.
func (c *Chunker) split(text string) []string {
	if text == "" {
		return nil
	}
	if !c.over(text) {
		return []string{text}
	}

	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}

	var chunks []string
	buf := ""
	flush := func() {
		if trimmed := strings.TrimSpace(buf); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		buf = ""
	}

	for _, p := range paras {
		if c.over(p) {
			flush()
			chunks = append(chunks, c.hardCut(p)...)
			continue
		}
		joined := p
		if buf != "" {
			joined = buf + "\n\n" + p
		}
		if c.over(joined) {
			flush()
			buf = p
		} else {
			buf = joined
		}
	}
	flush()
	return chunks
}

func (c *Chunker) hardCut(p string) []string {
	runes := []rune(p)
	var out []string
	for start := 0; start < len(runes); start += c.maxChars {
		end := min(start+c.maxChars, len(runes))
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
