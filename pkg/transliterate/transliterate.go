// Package transliterate renders Hanzi as tone-marked pinyin.
package transliterate

import (
	"strings"

	gopinyin "github.com/mozillazg/go-pinyin"
)

// Pinyin converts a Hanzi string to tone-marked pinyin, one space-separated
// syllable per Han rune. Runes without a pinyin reading (Latin letters,
// punctuation, whitespace) pass through unchanged. The result is
// deterministic: for polyphonic characters the most common reading wins.
func Pinyin(hanzi string) string {
	args := gopinyin.NewArgs()
	args.Style = gopinyin.Tone

	var b strings.Builder
	for _, r := range hanzi {
		syllables := gopinyin.SinglePinyin(r, args)
		if len(syllables) == 0 {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 && !endsWithSpace(&b) {
			b.WriteByte(' ')
		}
		b.WriteString(syllables[0])
	}
	return strings.TrimSpace(b.String())
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return len(s) > 0 && s[len(s)-1] == ' '
}
