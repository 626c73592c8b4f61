package usecase

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/adot20/product-search-backend/internal/domain"
)

// Scoring weights
const (
	wholeWordWeight   = 3  // term appears as a whole word in the title
	substringWeight   = 1  // term appears only inside a longer word
	multiMatchBonus   = 10 // two or more whole-word hits
	multiMatchMinimum = 2
)

// Matching defaults
const (
	DefaultMinScore      = 2
	DefaultMinTermLength = 2
)

// MatchConfig holds configuration for the matching service. A MinScore of
// zero accepts any best-scoring title; negative values use DefaultMinScore.
type MatchConfig struct {
	MinScore           int
	MinTermLength      int
	EnableDebugLogging bool
}

// DefaultMatchConfig returns the thresholds used when none are configured.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{MinScore: DefaultMinScore, MinTermLength: DefaultMinTermLength}
}

// MatchingService ranks candidate product titles against a search query.
type MatchingService struct {
	minScore      int
	minTermLength int
	debug         bool
	logger        *zap.Logger

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig, logger *zap.Logger) *MatchingService {
	minScore := config.MinScore
	if minScore < 0 {
		minScore = DefaultMinScore
	}

	minTermLength := config.MinTermLength
	if minTermLength <= 0 {
		minTermLength = DefaultMinTermLength
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchingService{
		minScore:      minScore,
		minTermLength: minTermLength,
		debug:         config.EnableDebugLogging,
		logger:        logger.Named("matcher"),
		patterns:      make(map[string]*regexp.Regexp),
	}
}

// Score computes the relevance of title to query. Each term scores 3 for a
// whole-word hit, otherwise 1 for a substring hit; two or more whole-word
// hits add a bonus of 10. Comparison is case-insensitive.
func (s *MatchingService) Score(query domain.SearchQuery, title string) int {
	folded := fold(title)
	score := 0
	exactMatches := 0

	for _, term := range query.Terms() {
		term = fold(term)
		if len([]rune(term)) < s.minTermLength {
			continue
		}
		if s.wordPattern(term).MatchString(folded) {
			score += wholeWordWeight
			exactMatches++
		} else if strings.Contains(folded, term) {
			score += substringWeight
		}
	}

	if exactMatches >= multiMatchMinimum {
		score += multiMatchBonus
	}
	return score
}

// SelectBest returns the index of the highest-scoring title. Ties go to the
// earliest title. When no title reaches the minimum score, the first
// non-empty title is returned so a page with products never comes back empty.
func (s *MatchingService) SelectBest(query domain.SearchQuery, titles []string) (int, int) {
	if len(titles) == 0 {
		return -1, 0
	}

	bestIndex, bestScore := -1, -1
	firstValid := -1
	for i, title := range titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		if firstValid < 0 {
			firstValid = i
		}

		score := s.Score(query, title)
		if s.debug {
			s.logger.Debug("scored candidate",
				zap.String("query", query.Text()),
				zap.String("title", title),
				zap.Int("score", score))
		}
		if score > bestScore {
			bestIndex, bestScore = i, score
		}
	}

	if firstValid < 0 {
		return -1, 0
	}
	if bestScore < s.minScore {
		if s.debug {
			s.logger.Debug("no candidate reached minimum score, using first",
				zap.String("query", query.Text()),
				zap.Int("best_score", bestScore),
				zap.Int("min_score", s.minScore))
		}
		return firstValid, s.Score(query, titles[firstValid])
	}
	return bestIndex, bestScore
}

// wordPattern returns the cached whole-word regex for term.
func (s *MatchingService) wordPattern(term string) *regexp.Regexp {
	s.mu.RLock()
	re, ok := s.patterns[term]
	s.mu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	s.mu.Lock()
	s.patterns[term] = re
	s.mu.Unlock()
	return re
}

// fold lowercases s after compatibility normalization, so full-width and
// ligature forms compare equal to their plain equivalents.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
