package rules

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fencedCode   = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`([^`]*)`")
	image        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	link         = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	bareURL      = regexp.MustCompile(`https?://\S+`)
	emphasis     = regexp.MustCompile(`(\*\*|__|\*|_|~~)([^*_~\n]+)(\*\*|__|\*|_|~~)`)
	heading      = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	blockquote   = regexp.MustCompile(`(?m)^\s*>\s?`)
	bullet       = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+`)
	tableRule    = regexp.MustCompile(`(?m)^\s*\|?[\s:|-]+\|[\s:|-]*$`)
	horizontal   = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	blankLineRun = regexp.MustCompile(`\n{2,}`)
)

// StripMarkdown turns assistant markdown into plain text a speech engine can
// read aloud. Code blocks are dropped; link and emphasis text is kept.
func StripMarkdown(text string) string {
	text = fencedCode.ReplaceAllString(text, " ")
	text = image.ReplaceAllString(text, "$1")
	text = link.ReplaceAllString(text, "$1")
	text = bareURL.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = horizontal.ReplaceAllString(text, "")
	text = tableRule.ReplaceAllString(text, "")
	text = heading.ReplaceAllString(text, "")
	text = blockquote.ReplaceAllString(text, "")
	text = bullet.ReplaceAllString(text, "")
	for {
		next := emphasis.ReplaceAllString(text, "$2")
		if next == text {
			break
		}
		text = next
	}
	text = strings.ReplaceAll(text, "|", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	text = blankLineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}

// Preparer produces the text handed to a speech engine.
type Preparer struct {
	subs     *Substitutions
	maxChars int
}

// NewPreparer combines markdown stripping with user substitutions. maxChars
// caps the spoken length; zero means unlimited.
func NewPreparer(subs *Substitutions, maxChars int) *Preparer {
	if subs == nil {
		subs = &Substitutions{loopLimit: defaultLoopLimit}
	}
	return &Preparer{subs: subs, maxChars: maxChars}
}

func (p *Preparer) Prepare(text string) (string, error) {
	spoken := p.subs.Apply(StripMarkdown(text))
	return truncateAtSentence(strings.TrimSpace(spoken), p.maxChars), nil
}

// truncateAtSentence cuts text to at most limit runes, preferring the last
// sentence end inside the limit.
func truncateAtSentence(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if idx := strings.LastIndexAny(cut, ".!?؟\n"); idx > 0 {
		return strings.TrimSpace(cut[:idx+1])
	}
	return strings.TrimSpace(cut)
}
