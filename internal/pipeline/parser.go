package pipeline

import "strings"

const (
	englishLabel  = "english translation:"
	mandarinLabel = "mandarin response:"
)

// SplitReply separates a tutor reply into its Mandarin and English halves.
//
// The generation prompt asks for Mandarin lines followed by a line labelled
// "English translation: ...", but models drift, so the parser is tolerant:
// labels match case-insensitively, a "Mandarin response:" prefix is stripped,
// and multiple Mandarin lines are joined with a space. When no English label
// is present at all, the first line is taken as Mandarin and the second (if
// any) as English. Either half may come back empty; the caller decides the
// fallback.
func SplitReply(raw string) (hanzi, english string) {
	var mandarin []string
	for line := range strings.Lines(raw) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), englishLabel) {
			if english == "" {
				_, after, _ := strings.Cut(line, ":")
				english = strings.TrimSpace(after)
			}
			continue
		}
		if rest, ok := cutPrefixFold(line, mandarinLabel); ok {
			line = strings.TrimSpace(rest)
			if line == "" {
				continue
			}
		}
		mandarin = append(mandarin, line)
	}

	if english != "" {
		return strings.Join(mandarin, " "), english
	}

	// Unlabelled reply: first line Mandarin, second English.
	switch len(mandarin) {
	case 0:
		return "", ""
	case 1:
		return mandarin[0], ""
	default:
		return mandarin[0], mandarin[1]
	}
}

// stripTranslationLabel removes a leading "English translation:" label that
// some models prepend to plain translation output.
func stripTranslationLabel(s string) string {
	if rest, ok := cutPrefixFold(strings.TrimSpace(s), englishLabel); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(s)
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
