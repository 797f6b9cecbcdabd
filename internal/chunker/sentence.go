package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	digit          = regexp.MustCompile(`\d`)

	// Numbered section titles ("2.1 Mercado") or upper-case lines.
	numberedHeader  = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)
	upperCaseHeader = regexp.MustCompile(`^[A-ZÁÉÍÓÚÜÑ0-9 ,.\-:%()]+$`)

	// Sentence boundary: whitespace after terminal punctuation, followed by
	// an upper-case letter or digit. Needs lookaround, hence regexp2.
	sentenceBoundary = regexp2.MustCompile(`(?<=[.!?])\s+(?=[A-ZÁÉÍÓÚÜÑ0-9])`, regexp2.None)
)

// maxHeaderRunes bounds what is considered a header line.
const maxHeaderRunes = 200

// SplitSentences packs sentences into chunks of at most maxChars runes.
// Paragraphs are split on blank lines; headers are kept whole; bullet
// fragments stay with the preceding sentence. When a chunk is emitted its
// last overlap runes seed the next one. Sentences longer than maxChars are
// hard-cut with step maxChars-overlap.
func SplitSentences(text string, maxChars, overlap int) ([]string, error) {
	if err := validateParams(text, maxChars, overlap); err != nil {
		return nil, err
	}

	var sents []string
	for _, p := range splitParagraphs(text) {
		sents = append(sents, sentences(p)...)
	}
	return packSentences(sents, maxChars, overlap), nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = whitespaceRun.ReplaceAllString(strings.TrimSpace(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHeader(line string) bool {
	line = strings.TrimSpace(line)
	n := utf8.RuneCountInString(line)
	if n <= 3 || n > maxHeaderRunes {
		return false
	}
	if strings.ToLower(line) == line && !digit.MatchString(line) {
		return false
	}
	return numberedHeader.MatchString(line) || upperCaseHeader.MatchString(line)
}

func sentences(paragraph string) []string {
	if isHeader(paragraph) {
		return []string{paragraph}
	}

	var out []string
	for _, s := range splitOnBoundaries(paragraph) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if (strings.HasPrefix(s, "•") || strings.HasPrefix(s, "-")) && len(out) > 0 {
			out[len(out)-1] += " " + s
			continue
		}
		out = append(out, s)
	}
	return out
}

func splitOnBoundaries(s string) []string {
	r := []rune(s)
	var parts []string
	last := 0

	m, err := sentenceBoundary.FindRunesMatch(r)
	for m != nil && err == nil {
		parts = append(parts, string(r[last:m.Index]))
		last = m.Index + m.Length
		m, err = sentenceBoundary.FindNextMatch(m)
	}
	return append(parts, string(r[last:]))
}

// packer accumulates sentences; length is counted in runes including the
// joining spaces.
type packer struct {
	maxChars, overlap int
	buf               []string
	bufLen            int
	onlySeed          bool // buf holds nothing but the carried overlap
	chunks            []string
}

func packSentences(sents []string, maxChars, overlap int) []string {
	p := &packer{maxChars: maxChars, overlap: overlap}

	for _, s := range sents {
		n := utf8.RuneCountInString(s)
		if n == 0 {
			continue
		}
		if p.bufLen+n+1 <= maxChars {
			p.add(s, n)
			continue
		}

		p.flush(true)
		if n > maxChars {
			p.hardSplit(s)
			continue
		}
		// The overlap tail may not leave room for s.
		if p.bufLen+n+1 > maxChars {
			p.reset("")
		}
		p.add(s, n)
	}

	p.flush(false)
	return p.chunks
}

func (p *packer) add(s string, n int) {
	p.buf = append(p.buf, s)
	p.bufLen += n + 1
	p.onlySeed = false
}

// flush emits the buffer. A buffer holding only the carried overlap is
// dropped, since its text is already in the previous chunk.
func (p *packer) flush(keepTail bool) {
	if len(p.buf) == 0 || p.onlySeed {
		p.reset("")
		return
	}
	text := strings.TrimSpace(strings.Join(p.buf, " "))
	if text != "" {
		p.chunks = append(p.chunks, text)
	}
	if keepTail && p.overlap > 0 && len(p.chunks) > 0 {
		p.reset(tail(p.chunks[len(p.chunks)-1], p.overlap))
		return
	}
	p.reset("")
}

func (p *packer) hardSplit(s string) {
	r := []rune(s)
	step := p.maxChars - p.overlap
	for i := 0; i < len(r); i += step {
		end := i + p.maxChars
		if end >= len(r) {
			p.chunks = append(p.chunks, string(r[i:]))
			break
		}
		p.chunks = append(p.chunks, string(r[i:end]))
	}
	p.reset(tail(s, p.overlap))
}

func (p *packer) reset(seed string) {
	p.buf, p.bufLen, p.onlySeed = nil, 0, false
	if seed != "" {
		p.buf = []string{seed}
		p.bufLen = utf8.RuneCountInString(seed)
		p.onlySeed = true
	}
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
