package scripture

import "strings"

// Book is one canonical reference work from the churchofjesuschrist.org
// study library: its display name, short code, URL path segment, the
// spoken/written aliases that resolve to it, and the set of valid chapters.
type Book struct {
	Name      string   `json:"name"`
	ShortName string   `json:"shortName"`
	Path      string   `json:"path"`
	Aliases   []string `json:"aliases"`
	Chapters  []int    `json:"chapters"`
}

// HasChapter reports whether n is a valid chapter of the book.
func (b *Book) HasChapter(n int) bool {
	for _, c := range b.Chapters {
		if c == n {
			return true
		}
	}
	return false
}

// chapters returns [1..n].
func chapters(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// books is the complete static reference table. It is built once at package
// init and never mutated afterwards; all lookups go through the alias index.
var books = []*Book{
	// Book of Mormon
	{Name: "Book of Mormon", ShortName: "bofm", Path: "bofm",
		Aliases: []string{"book of mormon", "bom"}},
	{Name: "1 Nephi", ShortName: "1-ne", Path: "bofm/1-ne",
		Aliases: []string{"first nephi", "1 nephi", "1 ne", "nephi 1"}, Chapters: chapters(22)},
	{Name: "2 Nephi", ShortName: "2-ne", Path: "bofm/2-ne",
		Aliases: []string{"second nephi", "2 nephi", "2 ne", "nephi 2"}, Chapters: chapters(33)},
	{Name: "Jacob", ShortName: "jacob", Path: "bofm/jacob",
		Aliases: []string{"jacob"}, Chapters: chapters(7)},
	{Name: "Enos", ShortName: "enos", Path: "bofm/enos",
		Aliases: []string{"enos"}, Chapters: chapters(1)},
	{Name: "Jarom", ShortName: "jarom", Path: "bofm/jarom",
		Aliases: []string{"jarom"}, Chapters: chapters(1)},
	{Name: "Omni", ShortName: "omni", Path: "bofm/omni",
		Aliases: []string{"omni"}, Chapters: chapters(1)},
	{Name: "Words of Mormon", ShortName: "w-of-m", Path: "bofm/w-of-m",
		Aliases: []string{"words of mormon", "w of m"}, Chapters: chapters(1)},
	{Name: "Mosiah", ShortName: "mosiah", Path: "bofm/mosiah",
		Aliases: []string{"mosiah"}, Chapters: chapters(29)},
	{Name: "Alma", ShortName: "alma", Path: "bofm/alma",
		Aliases: []string{"alma"}, Chapters: chapters(63)},
	{Name: "Helaman", ShortName: "hel", Path: "bofm/hel",
		Aliases: []string{"helaman"}, Chapters: chapters(16)},
	{Name: "3 Nephi", ShortName: "3-ne", Path: "bofm/3-ne",
		Aliases: []string{"third nephi", "3 nephi", "3 ne", "nephi 3"}, Chapters: chapters(30)},
	{Name: "4 Nephi", ShortName: "4-ne", Path: "bofm/4-ne",
		Aliases: []string{"fourth nephi", "4 nephi", "4 ne", "nephi 4"}, Chapters: chapters(1)},
	{Name: "Mormon", ShortName: "morm", Path: "bofm/morm",
		Aliases: []string{"mormon"}, Chapters: chapters(9)},
	{Name: "Ether", ShortName: "ether", Path: "bofm/ether",
		Aliases: []string{"ether"}, Chapters: chapters(15)},
	{Name: "Moroni", ShortName: "moro", Path: "bofm/moro",
		Aliases: []string{"moroni"}, Chapters: chapters(10)},

	// Doctrine and Covenants
	{Name: "Doctrine and Covenants", ShortName: "dc", Path: "dc-testament/dc",
		Aliases: []string{"doctrine and covenants", "d&c", "dc"}, Chapters: chapters(138)},

	// Pearl of Great Price
	{Name: "Pearl of Great Price", ShortName: "pgp", Path: "pgp",
		Aliases: []string{"pearl of great price", "pgp"}},
	{Name: "Moses", ShortName: "moses", Path: "pgp/moses",
		Aliases: []string{"moses"}, Chapters: chapters(8)},
	{Name: "Abraham", ShortName: "abr", Path: "pgp/abr",
		Aliases: []string{"abraham"}, Chapters: chapters(5)},
	{Name: "Joseph Smith—Matthew", ShortName: "js-m", Path: "pgp/js-m",
		Aliases: []string{"joseph smith matthew", "js matthew", "js-m"}, Chapters: chapters(1)},
	{Name: "Joseph Smith—History", ShortName: "js-h", Path: "pgp/js-h",
		Aliases: []string{"joseph smith history", "js history", "js-h"}, Chapters: chapters(1)},
	{Name: "Articles of Faith", ShortName: "a-of-f", Path: "pgp/a-of-f",
		Aliases: []string{"articles of faith", "a of f", "a-of-f"}, Chapters: chapters(1)},

	// Old Testament
	{Name: "Old Testament", ShortName: "ot", Path: "ot",
		Aliases: []string{"old testament", "ot"}},
	{Name: "Genesis", ShortName: "gen", Path: "ot/gen",
		Aliases: []string{"genesis", "gen"}, Chapters: chapters(50)},
	{Name: "Exodus", ShortName: "ex", Path: "ot/ex",
		Aliases: []string{"exodus", "ex"}, Chapters: chapters(40)},
	{Name: "Leviticus", ShortName: "lev", Path: "ot/lev",
		Aliases: []string{"leviticus", "lev"}, Chapters: chapters(27)},
	{Name: "Numbers", ShortName: "num", Path: "ot/num",
		Aliases: []string{"numbers", "num"}, Chapters: chapters(36)},
	{Name: "Deuteronomy", ShortName: "deut", Path: "ot/deut",
		Aliases: []string{"deuteronomy", "deut"}, Chapters: chapters(34)},
	{Name: "Joshua", ShortName: "josh", Path: "ot/josh",
		Aliases: []string{"joshua", "josh"}, Chapters: chapters(24)},
	{Name: "Judges", ShortName: "judg", Path: "ot/judg",
		Aliases: []string{"judges", "judg"}, Chapters: chapters(21)},
	{Name: "Ruth", ShortName: "ruth", Path: "ot/ruth",
		Aliases: []string{"ruth"}, Chapters: chapters(4)},
	{Name: "1 Samuel", ShortName: "1-sam", Path: "ot/1-sam",
		Aliases: []string{"first samuel", "1 samuel", "1 sam"}, Chapters: chapters(31)},
	{Name: "2 Samuel", ShortName: "2-sam", Path: "ot/2-sam",
		Aliases: []string{"second samuel", "2 samuel", "2 sam"}, Chapters: chapters(24)},
	{Name: "1 Kings", ShortName: "1-kgs", Path: "ot/1-kgs",
		Aliases: []string{"first kings", "1 kings", "1 kgs"}, Chapters: chapters(22)},
	{Name: "2 Kings", ShortName: "2-kgs", Path: "ot/2-kgs",
		Aliases: []string{"second kings", "2 kings", "2 kgs"}, Chapters: chapters(25)},
	{Name: "1 Chronicles", ShortName: "1-chr", Path: "ot/1-chr",
		Aliases: []string{"first chronicles", "1 chronicles", "1 chr"}, Chapters: chapters(29)},
	{Name: "2 Chronicles", ShortName: "2-chr", Path: "ot/2-chr",
		Aliases: []string{"second chronicles", "2 chronicles", "2 chr"}, Chapters: chapters(36)},
	{Name: "Ezra", ShortName: "ezra", Path: "ot/ezra",
		Aliases: []string{"ezra"}, Chapters: chapters(10)},
	{Name: "Nehemiah", ShortName: "neh", Path: "ot/neh",
		Aliases: []string{"nehemiah", "neh"}, Chapters: chapters(13)},
	{Name: "Esther", ShortName: "esth", Path: "ot/esth",
		Aliases: []string{"esther", "esth"}, Chapters: chapters(10)},
	{Name: "Job", ShortName: "job", Path: "ot/job",
		Aliases: []string{"job"}, Chapters: chapters(42)},
	{Name: "Psalms", ShortName: "ps", Path: "ot/ps",
		Aliases: []string{"psalms", "psalm", "ps"}, Chapters: chapters(150)},
	{Name: "Proverbs", ShortName: "prov", Path: "ot/prov",
		Aliases: []string{"proverbs", "prov"}, Chapters: chapters(31)},
	{Name: "Ecclesiastes", ShortName: "eccl", Path: "ot/eccl",
		Aliases: []string{"ecclesiastes", "eccl"}, Chapters: chapters(12)},
	{Name: "Song of Solomon", ShortName: "song", Path: "ot/song",
		Aliases: []string{"song of solomon", "song"}, Chapters: chapters(8)},
	{Name: "Isaiah", ShortName: "isa", Path: "ot/isa",
		Aliases: []string{"isaiah", "isa"}, Chapters: chapters(66)},
	{Name: "Jeremiah", ShortName: "jer", Path: "ot/jer",
		Aliases: []string{"jeremiah", "jer"}, Chapters: chapters(52)},
	{Name: "Lamentations", ShortName: "lam", Path: "ot/lam",
		Aliases: []string{"lamentations", "lam"}, Chapters: chapters(5)},
	{Name: "Ezekiel", ShortName: "ezek", Path: "ot/ezek",
		Aliases: []string{"ezekiel", "ezek"}, Chapters: chapters(48)},
	{Name: "Daniel", ShortName: "dan", Path: "ot/dan",
		Aliases: []string{"daniel", "dan"}, Chapters: chapters(12)},
	{Name: "Hosea", ShortName: "hosea", Path: "ot/hosea",
		Aliases: []string{"hosea"}, Chapters: chapters(14)},
	{Name: "Joel", ShortName: "joel", Path: "ot/joel",
		Aliases: []string{"joel"}, Chapters: chapters(3)},
	{Name: "Amos", ShortName: "amos", Path: "ot/amos",
		Aliases: []string{"amos"}, Chapters: chapters(9)},
	{Name: "Obadiah", ShortName: "obad", Path: "ot/obad",
		Aliases: []string{"obadiah", "obad"}, Chapters: chapters(1)},
	{Name: "Jonah", ShortName: "jonah", Path: "ot/jonah",
		Aliases: []string{"jonah"}, Chapters: chapters(4)},
	{Name: "Micah", ShortName: "micah", Path: "ot/micah",
		Aliases: []string{"micah"}, Chapters: chapters(7)},
	{Name: "Nahum", ShortName: "nahum", Path: "ot/nahum",
		Aliases: []string{"nahum"}, Chapters: chapters(3)},
	{Name: "Habakkuk", ShortName: "hab", Path: "ot/hab",
		Aliases: []string{"habakkuk", "hab"}, Chapters: chapters(3)},
	{Name: "Zephaniah", ShortName: "zeph", Path: "ot/zeph",
		Aliases: []string{"zephaniah", "zeph"}, Chapters: chapters(3)},
	{Name: "Haggai", ShortName: "hag", Path: "ot/hag",
		Aliases: []string{"haggai", "hag"}, Chapters: chapters(2)},
	{Name: "Zechariah", ShortName: "zech", Path: "ot/zech",
		Aliases: []string{"zechariah", "zech"}, Chapters: chapters(14)},
	{Name: "Malachi", ShortName: "mal", Path: "ot/mal",
		Aliases: []string{"malachi", "mal"}, Chapters: chapters(4)},

	// New Testament
	{Name: "New Testament", ShortName: "nt", Path: "nt",
		Aliases: []string{"new testament", "nt"}},
	{Name: "Matthew", ShortName: "matt", Path: "nt/matt",
		Aliases: []string{"matthew", "matt"}, Chapters: chapters(28)},
	{Name: "Mark", ShortName: "mark", Path: "nt/mark",
		Aliases: []string{"mark"}, Chapters: chapters(16)},
	{Name: "Luke", ShortName: "luke", Path: "nt/luke",
		Aliases: []string{"luke"}, Chapters: chapters(24)},
	{Name: "John", ShortName: "john", Path: "nt/john",
		Aliases: []string{"john"}, Chapters: chapters(21)},
	{Name: "Acts", ShortName: "acts", Path: "nt/acts",
		Aliases: []string{"acts"}, Chapters: chapters(28)},
	{Name: "Romans", ShortName: "rom", Path: "nt/rom",
		Aliases: []string{"romans", "rom"}, Chapters: chapters(16)},
	{Name: "1 Corinthians", ShortName: "1-cor", Path: "nt/1-cor",
		Aliases: []string{"first corinthians", "1 corinthians", "1 cor"}, Chapters: chapters(16)},
	{Name: "2 Corinthians", ShortName: "2-cor", Path: "nt/2-cor",
		Aliases: []string{"second corinthians", "2 corinthians", "2 cor"}, Chapters: chapters(13)},
	{Name: "Galatians", ShortName: "gal", Path: "nt/gal",
		Aliases: []string{"galatians", "gal"}, Chapters: chapters(6)},
	{Name: "Ephesians", ShortName: "eph", Path: "nt/eph",
		Aliases: []string{"ephesians", "eph"}, Chapters: chapters(6)},
	{Name: "Philippians", ShortName: "philip", Path: "nt/philip",
		Aliases: []string{"philippians", "philip"}, Chapters: chapters(4)},
	{Name: "Colossians", ShortName: "col", Path: "nt/col",
		Aliases: []string{"colossians", "col"}, Chapters: chapters(4)},
	{Name: "1 Thessalonians", ShortName: "1-thes", Path: "nt/1-thes",
		Aliases: []string{"first thessalonians", "1 thessalonians", "1 thes"}, Chapters: chapters(5)},
	{Name: "2 Thessalonians", ShortName: "2-thes", Path: "nt/2-thes",
		Aliases: []string{"second thessalonians", "2 thessalonians", "2 thes"}, Chapters: chapters(3)},
	{Name: "1 Timothy", ShortName: "1-tim", Path: "nt/1-tim",
		Aliases: []string{"first timothy", "1 timothy", "1 tim"}, Chapters: chapters(6)},
	{Name: "2 Timothy", ShortName: "2-tim", Path: "nt/2-tim",
		Aliases: []string{"second timothy", "2 timothy", "2 tim"}, Chapters: chapters(4)},
	{Name: "Titus", ShortName: "titus", Path: "nt/titus",
		Aliases: []string{"titus"}, Chapters: chapters(3)},
	{Name: "Philemon", ShortName: "philem", Path: "nt/philem",
		Aliases: []string{"philemon", "philem"}, Chapters: chapters(1)},
	{Name: "Hebrews", ShortName: "heb", Path: "nt/heb",
		Aliases: []string{"hebrews", "heb"}, Chapters: chapters(13)},
	{Name: "James", ShortName: "james", Path: "nt/james",
		Aliases: []string{"james"}, Chapters: chapters(5)},
	{Name: "1 Peter", ShortName: "1-pet", Path: "nt/1-pet",
		Aliases: []string{"first peter", "1 peter", "1 pet"}, Chapters: chapters(5)},
	{Name: "2 Peter", ShortName: "2-pet", Path: "nt/2-pet",
		Aliases: []string{"second peter", "2 peter", "2 pet"}, Chapters: chapters(3)},
	{Name: "1 John", ShortName: "1-jn", Path: "nt/1-jn",
		Aliases: []string{"first john", "1 john", "1 jn"}, Chapters: chapters(5)},
	{Name: "2 John", ShortName: "2-jn", Path: "nt/2-jn",
		Aliases: []string{"second john", "2 john", "2 jn"}, Chapters: chapters(1)},
	{Name: "3 John", ShortName: "3-jn", Path: "nt/3-jn",
		Aliases: []string{"third john", "3 john", "3 jn"}, Chapters: chapters(1)},
	{Name: "Jude", ShortName: "jude", Path: "nt/jude",
		Aliases: []string{"jude"}, Chapters: chapters(1)},
	{Name: "Revelation", ShortName: "rev", Path: "nt/rev",
		Aliases: []string{"revelation", "rev"}, Chapters: chapters(22)},
}

// aliasStripper removes the characters that vary between spoken, abbreviated
// and written forms of the same book name.
var aliasStripper = strings.NewReplacer(" ", "", "\t", "", "-", "", ".", "", "&", "", ",", "")

// normalizeAlias lowercases and strips whitespace, hyphens, periods, commas
// and ampersands so that "D&C", "d. & c." and "dc" all collapse to "dc".
func normalizeAlias(s string) string {
	return aliasStripper.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// aliasIndex maps every normalized canonical name and alias to its book.
// Canonical names are inserted first so an alias can never shadow one.
var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]*Book {
	idx := make(map[string]*Book, len(books)*3)
	for _, b := range books {
		idx[normalizeAlias(b.Name)] = b
	}
	for _, b := range books {
		for _, a := range b.Aliases {
			key := normalizeAlias(a)
			if _, ok := idx[key]; !ok {
				idx[key] = b
			}
		}
	}
	return idx
}

// FindBook resolves an alias to its book, or nil when the alias is unknown
// or empty. Lookup is insensitive to case, whitespace, hyphens, periods,
// commas and ampersands.
func FindBook(alias string) *Book {
	if alias == "" {
		return nil
	}
	key := normalizeAlias(alias)
	if key == "" {
		return nil
	}
	return aliasIndex[key]
}

// AllBooks returns the full reference table in canonical order. Callers must
// treat the result as read-only.
func AllBooks() []*Book {
	return books
}

// SearchBooks returns books whose name or aliases contain the query,
// case-insensitively.
func SearchBooks(query string) []*Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []*Book
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Name), q) {
			out = append(out, b)
			continue
		}
		for _, a := range b.Aliases {
			if strings.Contains(strings.ToLower(a), q) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// extra recognition terms sent to the provider alongside the book aliases.
var vocabularyTerms = []string{
	"Chapter", "Verse", "Section", "Testament",
	"Nephi", "Lehi", "Laman", "Lemuel", "Zarahemla",
}

// Vocabulary returns the deduplicated word list used to bias the upstream
// recognizer towards scripture names.
func Vocabulary() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range books {
		for _, a := range b.Aliases {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	for _, t := range vocabularyTerms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
