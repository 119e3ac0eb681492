package history

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nmathey/finahack/internal/platform/holdings"
)

// TopN is the length of each gainers and losers list.
const TopN = 5

// ErrInsufficientData is returned when fewer than two snapshots exist.
var ErrInsufficientData = errors.New("not enough history to compare")

// ErrUnknownRange is returned by ParseRange.
var ErrUnknownRange = errors.New("unknown range")

// Range selects the old snapshot of a comparison.
type Range string

const (
	RangeLastSync Range = "last_sync"
	RangeWeek     Range = "week"
	RangeMonth    Range = "month"
	RangeYear     Range = "year"
)

// Ranges lists every supported range.
var Ranges = []Range{RangeLastSync, RangeWeek, RangeMonth, RangeYear}

// ParseRange parses a range name. An empty name selects last_sync.
func ParseRange(s string) (Range, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RangeLastSync, nil
	}
	for _, r := range Ranges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
}

// Lookback is how far back the old snapshot is targeted. Zero for last_sync.
func (r Range) Lookback() time.Duration {
	switch r {
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	case RangeYear:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Mover is one ranked change.
type Mover struct {
	Key    string          `json:"key"`
	Label  string          `json:"label"`
	Change decimal.Decimal `json:"change"`
}

// Ranking holds the top gainers, largest first, and the top losers, most
// negative first. Changes are split by sign: a rise never appears among the
// losers, so a period where everything rose has no losers.
type Ranking struct {
	Gainers []Mover `json:"gainers"`
	Losers  []Mover `json:"losers"`
}

// Report is the outcome of Delta.
type Report struct {
	Range      Range     `json:"range"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Assets     Ranking   `json:"assets"`
	Accounts   Ranking   `json:"accounts"`
	Categories Ranking   `json:"categories"`
}

// Delta compares the most recent snapshot with the one selected by r, matching
// assets by key. A nil key selects holdings.LegacyKey.
//
// Only assets present in both snapshots contribute; an unknown current value
// counts as zero and unchanged assets are left out.
func Delta(history []Snapshot, r Range, now time.Time, key holdings.KeyFunc) (*Report, error) {
	if len(history) < 2 {
		return nil, ErrInsufficientData
	}
	if key == nil {
		key = holdings.LegacyKey
	}
	ordered := chronological(history)
	latest := ordered[len(ordered)-1]
	old := selectOld(ordered[:len(ordered)-1], r, now)

	before := indexAssets(old.Assets, key)

	var changes []Mover
	accounts := map[string]decimal.Decimal{}
	categories := map[string]decimal.Decimal{}
	seen := map[string]bool{}

	// walk latest from the end so the later duplicate of a key wins, like Merge
	for i := len(latest.Assets) - 1; i >= 0; i-- {
		a := latest.Assets[i]
		k := key(a)
		if seen[k] {
			continue
		}
		seen[k] = true

		prev, ok := before[k]
		if !ok {
			continue
		}
		change := a.Value().Sub(prev.Value())
		if change.IsZero() {
			continue
		}
		changes = append(changes, Mover{Key: k, Label: firstNonEmpty(a.Name, a.Key()), Change: change})
		accounts[a.AccountName] = accounts[a.AccountName].Add(change)
		categories[string(a.Category)] = categories[string(a.Category)].Add(change)
	}

	return &Report{
		Range:      r,
		From:       old.Timestamp,
		To:         latest.Timestamp,
		Assets:     rank(changes),
		Accounts:   rank(groupMovers(accounts)),
		Categories: rank(groupMovers(categories)),
	}, nil
}

// selectOld picks the immediately preceding snapshot for last_sync, otherwise
// the one closest to now minus the lookback. Ties go to the earlier snapshot.
func selectOld(candidates []Snapshot, r Range, now time.Time) Snapshot {
	lookback := r.Lookback()
	if lookback == 0 {
		return candidates[len(candidates)-1]
	}
	target := now.Add(-lookback)

	best := candidates[0]
	bestDist := absDuration(best.Timestamp.Sub(target))
	for _, s := range candidates[1:] {
		if d := absDuration(s.Timestamp.Sub(target)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func indexAssets(assets []holdings.NormalizedAsset, key holdings.KeyFunc) map[string]holdings.NormalizedAsset {
	index := make(map[string]holdings.NormalizedAsset, len(assets))
	for _, a := range assets {
		index[key(a)] = a
	}
	return index
}

func groupMovers(sums map[string]decimal.Decimal) []Mover {
	movers := make([]Mover, 0, len(sums))
	for k, v := range sums {
		movers = append(movers, Mover{Key: k, Label: k, Change: v})
	}
	return movers
}

func rank(movers []Mover) Ranking {
	gainers := make([]Mover, 0, TopN)
	losers := make([]Mover, 0, TopN)
	for _, m := range movers {
		switch m.Change.Sign() {
		case 1:
			gainers = append(gainers, m)
		case -1:
			losers = append(losers, m)
		}
	}

	sort.Slice(gainers, func(i, j int) bool {
		if c := gainers[i].Change.Cmp(gainers[j].Change); c != 0 {
			return c > 0
		}
		return gainers[i].Key < gainers[j].Key
	})
	sort.Slice(losers, func(i, j int) bool {
		if c := losers[i].Change.Cmp(losers[j].Change); c != 0 {
			return c < 0
		}
		return losers[i].Key < losers[j].Key
	})

	if len(gainers) > TopN {
		gainers = gainers[:TopN]
	}
	if len(losers) > TopN {
		losers = losers[:TopN]
	}
	return Ranking{Gainers: gainers, Losers: losers}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
