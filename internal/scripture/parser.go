package scripture

import (
	"regexp"
	"strconv"
	"strings"
)

// MatchKind tags which citation pattern a candidate matched.
type MatchKind int

const (
	NoMatch MatchKind = iota
	// VerseRange is "<alias> <chapter>:<verse-list>", e.g. "alma 32:21-22".
	VerseRange
	// ChapterRange is "<alias> <start>-<end>" with no verse part.
	ChapterRange
	// ChapterOnly is "<alias> <chapter>".
	ChapterOnly
)

// Candidate is a structurally parsed citation before alias resolution and
// chapter validation. Verse, EndVerse and EndChapter are zero when absent.
type Candidate struct {
	Kind       MatchKind
	Alias      string
	Chapter    int
	Verse      int
	EndVerse   int
	EndChapter int
	Text       string // matched span of the canonicalized input
}

// Keyword reduction applied after number normalization: "chapter" becomes a
// plain separator, "verse" becomes the colon of chapter:verse syntax.
var (
	chapterWordRe = regexp.MustCompile(`\s+chapter\s+`)
	verseWordRe   = regexp.MustCompile(`\s+verse\s+`)
	commaSpaceRe  = regexp.MustCompile(`,\s*`)
)

// The three pattern families, in priority order. The alias group is lazy and
// anchored so that on a window starting at a known alias it captures exactly
// the alias, not everything up to the last number in sight.
var (
	verseRangeRe   = regexp.MustCompile(`^([a-z0-9\s&\-]+?)\s+(\d+):([\d\-,]+)`)
	chapterRangeRe = regexp.MustCompile(`^([a-z0-9\s&\-]+?)\s+(\d+)\s*-\s*(\d+)`)
	chapterOnlyRe  = regexp.MustCompile(`^([a-z0-9\s&\-]+?)\s+(\d+)`)
	digitsRe       = regexp.MustCompile(`\d+`)
)

// canonicalizeKey reduces an already number-normalized fragment to the
// canonical "<alias> <chapter>[:<verses>]" shape the matchers expect.
func canonicalizeKey(text string) string {
	key := strings.ToLower(text)
	key = chapterWordRe.ReplaceAllString(key, " ")
	key = verseWordRe.ReplaceAllString(key, ":")
	key = colonSpaceRe.ReplaceAllString(key, ":")
	key = commaSpaceRe.ReplaceAllString(key, ",")
	return strings.TrimSpace(key)
}

// Parse applies the pattern families in priority order to a normalized
// fragment and returns the first structural match. It performs no alias or
// chapter validation; that is the detector's job. ok is false when no
// pattern matches.
//
// Go's regexp has no lookahead, so the "not followed by" guards that keep
// the chapter-range and chapter-only forms from swallowing verse syntax are
// explicit checks on the character after the match.
func Parse(text string) (Candidate, bool) {
	key := canonicalizeKey(text)
	if key == "" {
		return Candidate{}, false
	}

	if m := verseRangeRe.FindStringSubmatchIndex(key); m != nil {
		alias := strings.TrimSpace(key[m[2]:m[3]])
		chapter, _ := strconv.Atoi(key[m[4]:m[5]])
		verseList := key[m[6]:m[7]]

		nums := digitsRe.FindAllString(verseList, -1)
		if len(nums) == 0 {
			return Candidate{}, false
		}
		verse, _ := strconv.Atoi(nums[0])
		endVerse := 0
		if len(nums) > 1 {
			if last, _ := strconv.Atoi(nums[len(nums)-1]); last != verse {
				endVerse = last
			}
		}
		return Candidate{
			Kind:     VerseRange,
			Alias:    alias,
			Chapter:  chapter,
			Verse:    verse,
			EndVerse: endVerse,
			Text:     key[m[0]:m[1]],
		}, true
	}

	if m := chapterRangeRe.FindStringSubmatchIndex(key); m != nil && !followedBy(key, m[1], ":") {
		alias := strings.TrimSpace(key[m[2]:m[3]])
		chapter, _ := strconv.Atoi(key[m[4]:m[5]])
		endChapter, _ := strconv.Atoi(key[m[6]:m[7]])
		return Candidate{
			Kind:       ChapterRange,
			Alias:      alias,
			Chapter:    chapter,
			EndChapter: endChapter,
			Text:       key[m[0]:m[1]],
		}, true
	}

	if m := chapterOnlyRe.FindStringSubmatchIndex(key); m != nil && !followedBy(key, m[1], ":-") {
		alias := strings.TrimSpace(key[m[2]:m[3]])
		chapter, _ := strconv.Atoi(key[m[4]:m[5]])
		return Candidate{
			Kind:    ChapterOnly,
			Alias:   alias,
			Chapter: chapter,
			Text:    key[m[0]:m[1]],
		}, true
	}

	return Candidate{}, false
}

// followedBy reports whether the first non-space character of s at or after
// pos is one of chars.
func followedBy(s string, pos int, chars string) bool {
	for i := pos; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			continue
		}
		return strings.ContainsRune(chars, rune(s[i]))
	}
	return false
}
