package classify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// lexiconFile is the on-disk shape of a custom lexicon.
type lexiconFile struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Lexicon is a deterministic word-list sentiment classifier. It stands in
// for a model server in deployments that do not run one.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

var defaultPositive = []string{
	"good", "great", "excellent", "love", "loved", "like", "liked",
	"amazing", "awesome", "fantastic", "helpful", "happy", "best",
	"wonderful", "perfect", "recommend", "fast", "friendly",
}

var defaultNegative = []string{
	"bad", "terrible", "awful", "hate", "hated", "dislike", "worst",
	"poor", "slow", "broken", "useless", "disappointing", "disappointed",
	"horrible", "rude", "problem", "issue", "refund",
}

// NewLexicon returns the built-in sentiment lexicon.
func NewLexicon() *Lexicon {
	return buildLexicon(defaultPositive, defaultNegative)
}

// LoadLexicon reads positive/negative word lists from a YAML file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	if len(file.Positive) == 0 && len(file.Negative) == 0 {
		return nil, fmt.Errorf("lexicon %s has no word lists", path)
	}
	return buildLexicon(file.Positive, file.Negative), nil
}

func buildLexicon(positive, negative []string) *Lexicon {
	l := &Lexicon{
		positive: make(map[string]struct{}, len(positive)),
		negative: make(map[string]struct{}, len(negative)),
	}
	for _, w := range positive {
		l.positive[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	for _, w := range negative {
		l.negative[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return l
}

// Classify scores a comment by word-list hits.
func (l *Lexicon) Classify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	score := 0
	for _, word := range strings.FieldsFunc(strings.ToLower(text), isWordBoundary) {
		if _, ok := l.positive[word]; ok {
			score++
		}
		if _, ok := l.negative[word]; ok {
			score--
		}
	}

	switch {
	case score > 0:
		return LabelPositive, nil
	case score < 0:
		return LabelNegative, nil
	default:
		return LabelNeutral, nil
	}
}

func isWordBoundary(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
}

var _ Classifier = (*Lexicon)(nil)
