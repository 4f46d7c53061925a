package indicator

import "smc-systemv1/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(candle model.Candle) {
	s.push(candle.Close)
}

func (s *SMMA) push(price float64) {
	s.count++
	if s.count <= s.period {
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}
	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMMA) Peek(price float64) float64 {
	if s.count < s.period {
		return (s.sum + price) / float64(s.count+1)
	}
	return (s.current*float64(s.period-1) + price) / float64(s.period)
}

// ATR is Wilder's Average True Range: an SMMA over true range.
type ATR struct {
	smma      *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates an ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	a.smma.push(a.trueRange(candle.High, candle.Low))
	a.prevClose = candle.Close
	a.seen = true
}

func (a *ATR) trueRange(high, low float64) float64 {
	tr := high - low
	if a.seen {
		if d := high - a.prevClose; d > tr {
			tr = d
		}
		if d := a.prevClose - low; d > tr {
			tr = d
		}
	}
	return tr
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// Peek treats close as a zero-range bar, which is all a close-only preview
// can know.
func (a *ATR) Peek(close float64) float64 {
	return a.smma.Peek(a.trueRange(close, close))
}
