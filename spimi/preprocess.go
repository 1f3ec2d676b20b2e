package spimi

import (
	"os"
	"regexp"
	"strings"

	"reldb/reldberr"
)

// nonWord matches anything that is not a Unicode letter, digit, or
// whitespace (grounded on utils_spimi.preprocess's
// re.sub(r"[^\w\s]", " ", text) punctuation strip).
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// defaultStopwords is a standard short English stopword list, used
// when Config.StopwordsPath is empty. No stopword corpus ships with
// any example repo, so this is a hand-maintained stand-in for
// utils_spimi's nltk.corpus.stopwords("english").
var defaultStopwords = buildStopwordSet()

func buildStopwordSet() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "been", "being", "but",
		"by", "can", "could", "did", "do", "does", "doing", "down", "during",
		"each", "few", "for", "from", "further", "had", "has", "have",
		"having", "he", "her", "here", "hers", "herself", "him", "himself",
		"his", "how", "i", "if", "in", "into", "is", "it", "its", "itself",
		"just", "me", "more", "most", "my", "myself", "no", "nor", "not",
		"of", "off", "on", "once", "only", "or", "other", "our", "ours",
		"ourselves", "out", "over", "own", "same", "she", "should", "so",
		"some", "such", "than", "that", "the", "their", "theirs", "them",
		"themselves", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "very", "was",
		"we", "were", "what", "when", "where", "which", "while", "who",
		"whom", "why", "will", "with", "you", "your", "yours", "yourself",
		"yourselves",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// textPipeline holds the resolved stopword set and stemming switch a
// preprocess call runs with (config.DBConfig.Spimi's StopwordsPath/
// UseStemmer pair).
type textPipeline struct {
	stopwords  map[string]struct{}
	useStemmer bool
}

// newTextPipeline resolves a pipeline from the given config knobs. An
// empty stopwordsPath uses defaultStopwords; otherwise the path names
// a newline/whitespace-separated word list.
func newTextPipeline(stopwordsPath string, useStemmer bool) (*textPipeline, error) {
	set := defaultStopwords
	if stopwordsPath != "" {
		loaded, err := loadStopwords(stopwordsPath)
		if err != nil {
			return nil, err
		}
		set = loaded
	}
	return &textPipeline{stopwords: set, useStemmer: useStemmer}, nil
}

func loadStopwords(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "spimi.loadStopwords", "read stopwords file", err)
	}
	words := strings.Fields(string(data))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set, nil
}

// preprocess lowercases, strips punctuation, tokenizes on whitespace,
// drops stopwords and non-alphabetic tokens, and (if enabled) stems
// what's left (spec §4.8 "Preprocessing"; grounded on
// utils_spimi.preprocess).
func (p *textPipeline) preprocess(text string) []string {
	lower := strings.ToLower(text)
	cleaned := nonWord.ReplaceAllString(lower, " ")
	tokens := strings.Fields(cleaned)

	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !isAlpha(t) {
			continue
		}
		if _, stop := p.stopwords[t]; stop {
			continue
		}
		if p.useStemmer {
			t = stem(t)
		}
		out = append(out, t)
	}
	return out
}

// stem applies a simplified Porter-style suffix-stripping stemmer. No
// stemming library appears anywhere in the example pack (grep for
// "stem" across _examples turned up nothing but utils_spimi.py's own
// nltk.SnowballStemmer call), so this hand-rolled reduced rule set
// stands in for it — it covers the common English inflectional and a
// few derivational suffixes rather than the full Porter algorithm.
func stem(word string) string {
	if len(word) <= 3 {
		return word
	}

	type rule struct {
		suffix      string
		replacement string
		minStemLen  int
	}
	rules := []rule{
		{"ational", "ate", 3},
		{"ization", "ize", 3},
		{"ousness", "ous", 3},
		{"iveness", "ive", 3},
		{"fulness", "ful", 3},
		{"ation", "ate", 3},
		{"alism", "al", 3},
		{"aliti", "al", 3},
		{"iviti", "ive", 3},
		{"biliti", "ble", 3},
		{"ingly", "", 3},
		{"edly", "", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ed", "", 3},
		{"es", "", 2},
		{"ly", "", 3},
		{"er", "", 3},
		{"est", "", 3},
		{"ness", "", 3},
		{"ment", "", 3},
		{"able", "", 3},
		{"ible", "", 3},
		{"s", "", 2},
	}

	for _, r := range rules {
		if strings.HasSuffix(word, r.suffix) {
			stem := strings.TrimSuffix(word, r.suffix)
			if len(stem) >= r.minStemLen {
				return stem + r.replacement
			}
		}
	}
	return word
}
