package scripture

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Reference is a fully resolved scripture citation: canonical book name,
// chapter/verse coordinates and the study URL that locates it.
type Reference struct {
	Book         string `json:"book"`
	Chapter      int    `json:"chapter"`
	Verse        int    `json:"verse,omitempty"`
	EndVerse     int    `json:"endVerse,omitempty"`
	EndChapter   int    `json:"endChapter,omitempty"`
	URL          string `json:"url"`
	OriginalText string `json:"originalText"`
}

// Key is the dedup identity of a reference. Two references with the same key
// are the same citation regardless of how they were spoken.
func (r Reference) Key() string {
	return fmt.Sprintf("%s|%d|%d|%d", r.Book, r.Chapter, r.Verse, r.EndVerse)
}

const studyBaseURL = "https://www.churchofjesuschrist.org/study"

// buildURL composes the canonical study URL for a validated candidate.
func buildURL(b *Book, c Candidate, lang string) string {
	var frag string
	switch c.Kind {
	case VerseRange:
		frag = fmt.Sprintf("%d/%d", c.Chapter, c.Verse)
		if c.EndVerse > 0 {
			frag += "-" + strconv.Itoa(c.EndVerse)
		}
	case ChapterRange:
		frag = fmt.Sprintf("%d-%d", c.Chapter, c.EndChapter)
	default:
		frag = strconv.Itoa(c.Chapter)
	}
	return fmt.Sprintf("%s/%s/%s?lang=%s", studyBaseURL, b.Path, frag, lang)
}

// contextAfter bounds how far past an alias hit the detector looks for
// chapter and verse syntax. Long enough for "chapter 138 verse 121-125, 140".
const contextAfter = 48

// aliasScanRe matches any known book name or alias at word boundaries,
// longest alternative first so "2 nephi" wins over "nephi 2"'s prefix.
var aliasScanRe = buildAliasScanRe()

func buildAliasScanRe() *regexp.Regexp {
	seen := make(map[string]bool)
	var terms []string
	add := func(s string) {
		s = strings.ToLower(s)
		if !seen[s] {
			seen[s] = true
			terms = append(terms, s)
		}
	}
	for _, b := range books {
		add(b.Name)
		for _, a := range b.Aliases {
			add(a)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	for i, t := range terms {
		terms[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(terms, "|") + `)\b`)
}

// Detector turns free transcript text into resolved references.
type Detector struct {
	lang string
}

// NewDetector returns a detector producing English study URLs.
func NewDetector() *Detector {
	return &Detector{lang: "eng"}
}

// Resolve parses a single citation fragment ("2 Nephi 1:1-3", "Alma chapter
// three verse three through five") into a resolved reference. ok is false
// when no pattern matches, the alias is unknown, or the chapter is not a
// valid chapter of the book. Rejection is silent; there is no error case.
func (d *Detector) Resolve(raw string) (Reference, bool) {
	if strings.TrimSpace(raw) == "" {
		return Reference{}, false
	}
	return d.resolve(Parse(NormalizeSpoken(raw)))
}

func (d *Detector) resolve(c Candidate, ok bool) (Reference, bool) {
	if !ok {
		return Reference{}, false
	}
	book := FindBook(c.Alias)
	if book == nil || !book.HasChapter(c.Chapter) {
		return Reference{}, false
	}
	return Reference{
		Book:         book.Name,
		Chapter:      c.Chapter,
		Verse:        c.Verse,
		EndVerse:     c.EndVerse,
		EndChapter:   c.EndChapter,
		URL:          buildURL(book, c, d.lang),
		OriginalText: c.Text,
	}, true
}

// Detect scans a transcript segment for every citation it contains. The scan
// is non-overlapping and leftmost: each book-alias occurrence opens a bounded
// window that is parsed once, and spans are consumed left to right. Results
// are deduplicated on (book, chapter, verse, endVerse) with the first
// occurrence winning; order of first occurrence is preserved.
func (d *Detector) Detect(text string) []Reference {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	norm := NormalizeSpoken(text)

	var out []Reference
	seen := make(map[string]bool)
	cursor := 0
	for _, loc := range aliasScanRe.FindAllStringIndex(norm, -1) {
		if loc[0] < cursor {
			continue
		}
		end := loc[1] + contextAfter
		if end > len(norm) {
			end = len(norm)
		}
		ref, ok := d.resolve(Parse(norm[loc[0]:end]))
		if !ok {
			continue
		}
		cursor = loc[1]
		if !seen[ref.Key()] {
			seen[ref.Key()] = true
			out = append(out, ref)
		}
	}
	return out
}

// DetectFromChunks runs Detect over independent chunks and merges the
// results in chunk order under the same dedup rule.
func (d *Detector) DetectFromChunks(chunks []string) []Reference {
	var out []Reference
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		for _, ref := range d.Detect(chunk) {
			if !seen[ref.Key()] {
				seen[ref.Key()] = true
				out = append(out, ref)
			}
		}
	}
	return out
}
