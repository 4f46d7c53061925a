package indicator

import (
	"strconv"

	"smc-systemv1/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(candle model.Candle) {
	s.push(candle.Close)
}

func (s *SMA) push(price float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMA) Peek(price float64) float64 {
	if s.count < s.period {
		return (s.sum + price) / float64(s.count+1)
	}
	return (s.sum - s.buf[s.idx] + price) / float64(s.period)
}
