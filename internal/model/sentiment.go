package model

import "time"

// Direction is the directional read of a news sentiment score.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// NewsSentiment is the aggregated keyword sentiment for one symbol.
type NewsSentiment struct {
	Symbol          string    `json:"symbol"`
	Direction       Direction `json:"direction"`
	SentimentScore  float64   `json:"sentiment_score"`  // -100..100
	VolatilityScore float64   `json:"volatility_score"` // 0..100
	Confidence      float64   `json:"confidence"`       // 0..100
	ArticleCount    int       `json:"article_count"`
	Headlines       []string  `json:"headlines,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}
