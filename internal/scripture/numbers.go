package scripture

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Connective rewrites applied before number-word substitution: range words
// become hyphens, list words become commas, and spacing around colons is
// squeezed so the parser sees canonical "chapter:verse" syntax.
var (
	throughRe    = regexp.MustCompile(`(?i)\s+through\s+`)
	toRe         = regexp.MustCompile(`(?i)\s+to\s+`)
	andRe        = regexp.MustCompile(`(?i)\s+and\s+`)
	colonSpaceRe = regexp.MustCompile(`\s*:\s*`)
	chapterDupRe = regexp.MustCompile(`(?i)chapter\s+chapter`)
	verseDupRe   = regexp.MustCompile(`(?i)verse\s+verse`)
)

var onesWords = []string{"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

var teenWords = []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
	"sixteen", "seventeen", "eighteen", "nineteen"}

var tensWords = map[int]string{
	20: "twenty", 30: "thirty", 40: "forty", 50: "fifty",
	60: "sixty", 70: "seventy", 80: "eighty", 90: "ninety",
}

// wordsFor spells n (1..99) in its plain spoken form, e.g. 21 -> "twenty one".
func wordsFor(n int) string {
	switch {
	case n < 10:
		return onesWords[n]
	case n < 20:
		return teenWords[n-10]
	default:
		tens := tensWords[n/10*10]
		if n%10 == 0 {
			return tens
		}
		return tens + " " + onesWords[n%10]
	}
}

// buildNumberWords enumerates every spoken number form the normalizer
// understands: 1..99 with spaced and hyphenated compounds, "hundred", and
// 100..140 with the common "one hundred and x" variant.
func buildNumberWords() map[string]int {
	m := make(map[string]int, 400)
	for n := 1; n < 100; n++ {
		m[wordsFor(n)] = n
		if n > 20 && n%10 != 0 {
			m[strings.ReplaceAll(wordsFor(n), " ", "-")] = n
		}
	}
	m["hundred"] = 100
	m["one hundred"] = 100
	for n := 101; n <= 140; n++ {
		rest := wordsFor(n - 100)
		m["one hundred "+rest] = n
		m["one hundred and "+rest] = n
	}
	return m
}

var numberWords = buildNumberWords()

// numberWordRe matches any known number word at word boundaries. The
// alternation is ordered longest-first so that compound phrases ("twenty
// one") are consumed whole instead of partially by their shorter prefixes
// ("twenty"). Ordering here is a correctness requirement: Go's regexp uses
// leftmost-first alternation semantics.
var numberWordRe = buildNumberWordRe()

func buildNumberWordRe() *regexp.Regexp {
	words := make([]string, 0, len(numberWords))
	for w := range numberWords {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)\b`)
}

// NormalizeSpoken rewrites a spoken citation fragment into canonical digit
// and range syntax: "verse one through three" becomes "verse 1-3". The input
// is lowercased; word boundaries are respected so substrings of unrelated
// words are never corrupted.
func NormalizeSpoken(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = throughRe.ReplaceAllString(t, "-")
	t = toRe.ReplaceAllString(t, "-")
	t = andRe.ReplaceAllString(t, ",")
	t = colonSpaceRe.ReplaceAllString(t, ":")
	t = numberWordRe.ReplaceAllStringFunc(t, func(w string) string {
		return strconv.Itoa(numberWords[w])
	})
	// STT output sometimes stutters the keywords.
	t = chapterDupRe.ReplaceAllString(t, "chapter")
	t = verseDupRe.ReplaceAllString(t, "verse")
	return t
}
