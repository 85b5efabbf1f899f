// Package score derives KGR, difficulty and opportunity metrics from scraped counts.
package score

import (
	"errors"
	"math"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Classification bands for ranked keywords.
const (
	BandExcellent = "excellent"
	BandGood      = "good"
	BandModerate  = "moderate"
	BandDifficult = "difficult"
	BandUnranked  = "unranked"
)

// Coefficients weights the composite metrics.
type Coefficients struct {
	DifficultyAllintitleWeight float64 `mapstructure:"difficulty_allintitle_weight"`
	DifficultyIntitleWeight    float64 `mapstructure:"difficulty_intitle_weight"`
	OpportunityVolumeWeight    float64 `mapstructure:"opportunity_volume_weight"`
	OpportunityKGRWeight       float64 `mapstructure:"opportunity_kgr_weight"`
}

// DefaultCoefficients returns the weights used when nothing is configured.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		DifficultyAllintitleWeight: 0.7,
		DifficultyIntitleWeight:    0.3,
		OpportunityVolumeWeight:    1.0,
		OpportunityKGRWeight:       1.0,
	}
}

// Validate rejects negative weights.
func (c Coefficients) Validate() error {
	if c.DifficultyAllintitleWeight < 0 || c.DifficultyIntitleWeight < 0 ||
		c.OpportunityVolumeWeight < 0 || c.OpportunityKGRWeight < 0 {
		return errors.New("score coefficients must be non-negative")
	}
	return nil
}

// Calculator scores keywords. It holds no mutable state.
type Calculator struct {
	coef Coefficients
}

// NewCalculator returns a calculator using coef.
func NewCalculator(coef Coefficients) *Calculator {
	return &Calculator{coef: coef}
}

// Counts holds both query results for one keyword.
type Counts struct {
	Intitle    int
	Allintitle int
}

// Score computes the metrics for one keyword. A zero volume yields an
// unranked entry carrying the keyword.UnrankedKGR sentinel.
func (c *Calculator) Score(kw string, counts Counts, volume int) keyword.ScoredKeyword {
	out := keyword.ScoredKeyword{
		Keyword:         kw,
		SearchVolume:    volume,
		AllintitleCount: counts.Allintitle,
		IntitleCount:    counts.Intitle,
		DifficultyScore: round(c.coef.DifficultyAllintitleWeight*log1p10(counts.Allintitle) +
			c.coef.DifficultyIntitleWeight*log1p10(counts.Intitle)),
	}
	if volume <= 0 {
		out.KGRScore = keyword.UnrankedKGR
		out.Band = BandUnranked
		return out
	}
	kgr := float64(counts.Allintitle) / float64(volume)
	out.Ranked = true
	out.KGRScore = kgr
	out.Band = Classify(kgr)
	out.OpportunityScore = round(c.coef.OpportunityVolumeWeight * log1p10(volume) / (1 + c.coef.OpportunityKGRWeight*kgr))
	return out
}

// ScoreAll groups results by keyword, in first-seen order, and scores each
// keyword once. Keywords missing from volumes are scored as unranked.
func (c *Calculator) ScoreAll(results []keyword.KeywordResult, volumes map[string]int) []keyword.ScoredKeyword {
	order := make([]string, 0, len(results)/2)
	counts := make(map[string]*Counts, len(results)/2)
	for _, r := range results {
		entry, ok := counts[r.Keyword]
		if !ok {
			entry = &Counts{}
			counts[r.Keyword] = entry
			order = append(order, r.Keyword)
		}
		switch r.SearchType {
		case keyword.SearchIntitle:
			entry.Intitle = r.Count
		case keyword.SearchAllintitle:
			entry.Allintitle = r.Count
		}
	}
	out := make([]keyword.ScoredKeyword, 0, len(order))
	for _, kw := range order {
		out = append(out, c.Score(kw, *counts[kw], volumes[kw]))
	}
	return out
}

// Classify maps a KGR value to its band.
func Classify(kgr float64) string {
	switch {
	case kgr <= 0.25:
		return BandExcellent
	case kgr <= 0.5:
		return BandGood
	case kgr <= 1.0:
		return BandModerate
	default:
		return BandDifficult
	}
}

// Filter returns ranked keywords with at least q.MinSearchVolume volume and,
// when q.MaxKGR is positive, a KGR no greater than q.MaxKGR.
func Filter(results []keyword.ScoredKeyword, q keyword.FilterQuery) []keyword.ScoredKeyword {
	out := make([]keyword.ScoredKeyword, 0, len(results))
	for _, r := range results {
		if !r.Ranked || r.SearchVolume < q.MinSearchVolume {
			continue
		}
		if q.MaxKGR > 0 && r.KGRScore > q.MaxKGR {
			continue
		}
		out = append(out, r)
	}
	return out
}

func log1p10(v int) float64 {
	if v < 0 {
		v = 0
	}
	return math.Log10(1 + float64(v))
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
