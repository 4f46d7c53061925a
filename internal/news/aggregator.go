package news

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"smc-systemv1/internal/model"
)

// Config tunes the aggregator.
type Config struct {
	TTL         time.Duration // cache lifetime per symbol
	MaxArticles int           // newest articles scored per symbol
	MaxAge      time.Duration // articles older than this are ignored; 0 keeps all
	Threshold   float64       // |score| below this is NEUTRAL
}

// DefaultConfig returns a 5 minute cache and 30 articles.
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MaxArticles: 30,
		MaxAge:      48 * time.Hour,
		Threshold:   10,
	}
}

type cacheEntry struct {
	sentiment *model.NewsSentiment
	expires   time.Time
}

// Stats counts cache behaviour for metrics.
type Stats struct {
	Hits   uint64
	Misses uint64
	Errors uint64
}

// Aggregator implements model.SentimentProvider over a set of sources.
// Results are cached per symbol until they expire; there is no explicit
// invalidation.
type Aggregator struct {
	cfg         Config
	sources     []Source
	analyzer    *Analyzer
	instruments map[string]model.InstrumentSpec
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	stats Stats
}

// NewAggregator creates an aggregator. instruments supplies the search
// keywords per symbol; unknown symbols are searched by their own name.
func NewAggregator(cfg Config, instruments map[string]model.InstrumentSpec, sources ...Source) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = DefaultConfig().MaxArticles
	}
	return &Aggregator{
		cfg:         cfg,
		sources:     sources,
		analyzer:    NewAnalyzer(),
		instruments: instruments,
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
	}
}

// Stats returns a copy of the cache counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Sentiment returns the cached sentiment for symbol or fetches a fresh one.
// A fetch that fails on every source returns model.ErrSentimentUnavailable.
func (a *Aggregator) Sentiment(ctx context.Context, symbol string) (*model.NewsSentiment, error) {
	now := a.now()
	a.mu.Lock()
	if e, ok := a.cache[symbol]; ok && now.Before(e.expires) {
		a.stats.Hits++
		a.mu.Unlock()
		cp := *e.sentiment
		return &cp, nil
	}
	a.stats.Misses++
	a.mu.Unlock()

	articles, err := a.collect(ctx, symbol)
	if err != nil {
		a.mu.Lock()
		a.stats.Errors++
		a.mu.Unlock()
		return nil, err
	}

	ns := a.score(symbol, articles)
	ns.FetchedAt = now

	a.mu.Lock()
	a.cache[symbol] = cacheEntry{sentiment: ns, expires: now.Add(a.cfg.TTL)}
	a.mu.Unlock()

	cp := *ns
	return &cp, nil
}

// Warm refreshes every symbol whose entry has expired.
func (a *Aggregator) Warm(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		if _, err := a.Sentiment(ctx, sym); err != nil {
			log.Printf("[news] warm %s: %v", sym, err)
		}
	}
}

func (a *Aggregator) collect(ctx context.Context, symbol string) ([]Article, error) {
	if len(a.sources) == 0 {
		return nil, fmt.Errorf("%w: no news sources configured", model.ErrSentimentUnavailable)
	}
	spec, known := a.instruments[symbol]
	query := symbol
	if known && spec.Name != "" {
		query = spec.Name
	}

	type result struct {
		articles []Article
		err      error
	}
	results := make([]result, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			arts, err := src.Fetch(ctx, query)
			results[i] = result{arts, err}
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSentimentUnavailable, err)
	}

	var all []Article
	var firstErr error
	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			log.Printf("[news] source %s for %s: %v", a.sources[i].Name(), symbol, r.err)
			continue
		}
		all = append(all, r.articles...)
	}
	if failed == len(a.sources) {
		return nil, fmt.Errorf("%w: %v", model.ErrSentimentUnavailable, firstErr)
	}

	return a.filter(all, spec.Keywords), nil
}

// filter drops stale, duplicate and off-topic articles, newest first.
func (a *Aggregator) filter(in []Article, keywords []string) []Article {
	now := a.now()
	seen := make(map[string]bool, len(in))
	out := make([]Article, 0, len(in))
	for _, art := range in {
		key := strings.ToLower(strings.TrimSpace(art.Title))
		if key == "" || seen[key] {
			continue
		}
		if a.cfg.MaxAge > 0 && !art.Published.IsZero() && now.Sub(art.Published) > a.cfg.MaxAge {
			continue
		}
		if len(keywords) > 0 && !mentions(art.Text(), keywords) {
			continue
		}
		seen[key] = true
		out = append(out, art)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})
	if len(out) > a.cfg.MaxArticles {
		out = out[:a.cfg.MaxArticles]
	}
	return out
}

func mentions(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// score folds per-article readings into one NewsSentiment.
//
// SentimentScore is the mean article sentiment over articles with at least
// one match, scaled to -100..100. VolatilityScore is the mean volatility
// weight per article, scaled so one strong volatility word per article
// reads 50. Confidence grows with agreement between articles and with the
// number of matched articles.
func (a *Aggregator) score(symbol string, articles []Article) *model.NewsSentiment {
	ns := &model.NewsSentiment{
		Symbol:       symbol,
		Direction:    model.DirectionNeutral,
		ArticleCount: len(articles),
	}
	if len(articles) == 0 {
		return ns
	}

	var sum, vol float64
	var readings []float64
	for i, art := range articles {
		s := a.analyzer.Analyze(art.Text())
		vol += s.Volatility
		if i < 5 {
			ns.Headlines = append(ns.Headlines, art.Title)
		}
		if s.Matches == 0 {
			continue
		}
		readings = append(readings, s.Sentiment)
		sum += s.Sentiment
	}

	if n := len(readings); n > 0 {
		mean := sum / float64(n)
		ns.SentimentScore = round1(clamp(mean*100, -100, 100))
		agree := 0
		for _, r := range readings {
			if r != 0 && (r > 0) == (mean > 0) {
				agree++
			}
		}
		coverage := math.Min(float64(n)/5, 1)
		ns.Confidence = round1(clamp(float64(agree)/float64(n)*100*coverage, 0, 100))
	}
	ns.VolatilityScore = round1(clamp(vol/float64(len(articles))*50, 0, 100))

	switch {
	case ns.SentimentScore >= a.cfg.Threshold:
		ns.Direction = model.DirectionBullish
	case ns.SentimentScore <= -a.cfg.Threshold:
		ns.Direction = model.DirectionBearish
	}
	return ns
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
