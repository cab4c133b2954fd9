package speech

import (
	"strings"
	"unicode"

	"github.com/samber/lo"

	"voicechat/internal/domain"
)

var languageNames = map[string]string{
	"ar": "arabic",
	"en": "english",
	"fr": "french",
	"de": "german",
	"es": "spanish",
	"tr": "turkish",
	"ur": "urdu",
	"fa": "persian",
}

// SelectVoice picks, in order: a voice in the requested language whose name
// carries the hint, any voice carrying the hint, any voice in the language.
// ok is false when the engine default should be used.
func SelectVoice(voices []domain.Voice, opts domain.VoiceOptions) (domain.Voice, bool) {
	lang := primaryLanguage(opts.Language)
	hint := strings.ToLower(strings.TrimSpace(opts.VoiceHint))

	inLanguage := func(v domain.Voice, _ int) bool {
		if lang == "" {
			return false
		}
		if primaryLanguage(v.Lang) == lang {
			return true
		}
		name, known := languageNames[lang]
		return known && strings.Contains(strings.ToLower(v.Name), name)
	}
	hinted := func(v domain.Voice, _ int) bool {
		return hint != "" && lo.Contains(nameWords(v.Name), hint)
	}

	candidates := []func(domain.Voice, int) bool{
		func(v domain.Voice, i int) bool { return inLanguage(v, i) && hinted(v, i) },
		hinted,
		inLanguage,
	}
	for _, match := range candidates {
		if found := lo.Filter(voices, match); len(found) > 0 {
			return found[0], true
		}
	}
	return domain.Voice{}, false
}

// primaryLanguage returns the lower-cased primary subtag of a BCP 47 tag.
func primaryLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// nameWords splits a voice name into lower-cased words so that "male" does
// not match "Female".
func nameWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
