package evaluation

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	sentenceBoundary = regexp.MustCompile(`[.!?]+`)
	wordPattern      = regexp.MustCompile(`[\p{L}\p{N}]+`)
	properNounRun    = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	longNumber       = regexp.MustCompile(`\b\d{4,}\b`)
)

// estimateTokens approximates a token count as one token per four characters.
func estimateTokens(s string) int {
	return int(math.Ceil(float64(textLen(s)) / 4))
}

// textLen counts characters, not bytes.
func textLen(s string) int {
	return utf8.RuneCountInString(s)
}

// splitSentences splits on runs of terminal punctuation and drops fragments
// that are empty after trimming.
func splitSentences(s string) []string {
	var out []string
	for _, frag := range sentenceBoundary.Split(s, -1) {
		if strings.TrimSpace(frag) != "" {
			out = append(out, frag)
		}
	}
	return out
}

// significantWords returns the set of lower-cased words longer than three
// characters.
func significantWords(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		if textLen(w) > 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

// capitalizedWords returns whitespace-separated tokens of at least four
// characters that start with an upper-case letter. Punctuation at either end
// of a token is not part of the word.
func capitalizedWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		r, _ := utf8.DecodeRuneInString(w)
		if textLen(w) >= 4 && unicode.IsUpper(r) {
			out = append(out, w)
		}
	}
	return out
}

// hasSpecificClaim reports whether s names something concrete: a run of
// capitalized words or a number of four or more digits.
func hasSpecificClaim(s string) bool {
	return properNounRun.MatchString(s) || longNumber.MatchString(s)
}

// term matches a whole word or phrase. When negation is set, an occurrence
// only counts if it is not the start of the negated phrase, so "will" does
// not match inside "will not".
type term struct {
	word     string
	re       *regexp.Regexp
	negation *regexp.Regexp
}

func newTerm(word string) term {
	return term{word: word, re: wholeWord(word)}
}

func affirmativeTerm(word, negated string) term {
	return term{word: word, re: wholeWord(word), negation: wholeWord(negated)}
}

func wholeWord(w string) *regexp.Regexp {
	phrase := strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	return regexp.MustCompile(`(?i)\b` + phrase + `\b`)
}

// in reports whether the term occurs in s.
func (t term) in(s string) bool {
	n := len(t.re.FindAllStringIndex(s, -1))
	if t.negation != nil {
		n -= len(t.negation.FindAllStringIndex(s, -1))
	}
	return n > 0
}

// termPair is two terms that contradict each other.
type termPair struct {
	a, b term
}

// splitAcross reports whether one term of the pair occurs in x and the
// other in y, in either direction.
func (p termPair) splitAcross(x, y string) bool {
	return (p.a.in(x) && p.b.in(y)) || (p.b.in(x) && p.a.in(y))
}

// within reports whether both terms occur in s.
func (p termPair) within(s string) bool {
	return p.a.in(s) && p.b.in(s)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
