package rerank

import (
	"math"
	"regexp"
	"strings"
)

// LexicalModel scores relevance with the Ochiai coefficient over distinct
// token sets: |Q∩T| / sqrt(|Q|·|T|). Cheap, deterministic and local, it
// serves as the default relevance model when no cross-encoder is wired.
type LexicalModel struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewLexicalModel() *LexicalModel {
	return &LexicalModel{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Score computes one relevance value per text against the query.
func (m *LexicalModel) Score(query string, texts []string) []float64 {
	qset := m.tokenSet(query)
	out := make([]float64, len(texts))
	for i, text := range texts {
		out[i] = m.ochiai(qset, text)
	}
	return out
}

func (m *LexicalModel) ochiai(qset map[string]struct{}, text string) float64 {
	tset := m.tokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(tset))))
}

func (m *LexicalModel) tokenSet(s string) map[string]struct{} {
	tokens := m.tokenPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := m.stopwords[t]; stop {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
