package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voicechat/internal/domain"
)

func TestSelectVoiceOrder(t *testing.T) {
	t.Parallel()

	opts := domain.DefaultVoiceOptions()

	arabicMale := domain.Voice{Name: "Google Arabic Male", Lang: "ar-XA"}
	arabicFemale := domain.Voice{Name: "Laila Female", Lang: "ar-SA"}
	englishMale := domain.Voice{Name: "Daniel Male", Lang: "en-GB"}
	arabicByName := domain.Voice{Name: "Microsoft Naayf - Arabic (Saudi)", Lang: "und"}
	english := domain.Voice{Name: "Samantha", Lang: "en-US", Default: true}

	cases := []struct {
		name   string
		voices []domain.Voice
		want   domain.Voice
		ok     bool
	}{
		{"language and hint", []domain.Voice{english, englishMale, arabicFemale, arabicMale}, arabicMale, true},
		{"hint in any language", []domain.Voice{english, arabicFemale, englishMale}, englishMale, true},
		{"female is not male", []domain.Voice{english, arabicFemale}, arabicFemale, true},
		{"language by name", []domain.Voice{english, arabicByName}, arabicByName, true},
		{"engine default", []domain.Voice{english}, domain.Voice{}, false},
		{"no voices", nil, domain.Voice{}, false},
	}

	for _, tc := range cases {
		got, ok := SelectVoice(tc.voices, opts)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestPrimaryLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ar", primaryLanguage("ar-SA"))
	assert.Equal(t, "en", primaryLanguage(" EN_us "))
	assert.Equal(t, "", primaryLanguage(""))
}
