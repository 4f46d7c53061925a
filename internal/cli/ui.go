package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"smc-systemv1/internal/markethours"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/smc"
	"smc-systemv1/internal/strategy"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(78)

	signalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 2).
			Width(78)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	bullStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	bearStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	neutralStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// tone colours a directional word.
func tone(s string) string {
	switch strings.ToLower(s) {
	case "bullish", "buy", "discount", "markup", "accumulation", "hit_tp1", "hit_tp2", "hit_tp3":
		return bullStyle.Render(s)
	case "bearish", "sell", "premium", "markdown", "distribution", "hit_sl":
		return bearStyle.Render(s)
	}
	return neutralStyle.Render(s)
}

// RenderResult formats one synthesis pass for the terminal.
func RenderResult(symbol, tf string, spec model.InstrumentSpec, res *strategy.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("SMC analysis  %s %s", symbol, tf)))
	b.WriteString("\n")

	if res.Analysis == nil {
		b.WriteString(sectionStyle.Render(neutralStyle.Render("Not enough candles for analysis.")))
		b.WriteString("\n")
		return b.String()
	}
	a := res.Analysis
	price := func(v float64) string { return fmtPrice(spec, v) }

	var st []string
	st = append(st,
		row("Candles", fmt.Sprintf("%d (last %s)", a.CandleCount, time.UnixMilli(a.LastTime).UTC().Format("2006-01-02 15:04"))),
		row("Last close", price(a.LastClose)),
		row("Trend", tone(string(a.Structure.Trend))+dimStyle.Render(fmt.Sprintf("  HH %d / LL %d", a.Structure.HigherHighs, a.Structure.LowerLows))),
	)
	if ev, ok := a.Structure.LastEvent(); ok {
		st = append(st, row("Last event", fmt.Sprintf("%s %s @ %s", ev.Kind, tone(string(ev.Direction)), price(ev.Price))))
	}
	pd := a.PremiumDiscount
	st = append(st,
		row("Zone", fmt.Sprintf("%s  (range %s - %s, EQ %s)", tone(string(pd.CurrentZone)), price(pd.RangeLow), price(pd.RangeHigh), price(pd.Equilibrium))),
		row("Wyckoff", fmt.Sprintf("%s  %.0f%%", tone(string(a.Wyckoff.Phase)), a.Wyckoff.Confidence)),
	)
	if res.Indicators.Ready {
		st = append(st, row("EMA / RSI / ATR", fmt.Sprintf("%s / %s  RSI %.1f  ATR %s",
			price(res.Indicators.EMAFast), price(res.Indicators.EMASlow), res.Indicators.RSI, price(res.Indicators.ATR))))
	}
	if res.Indicators.SMA50 > 0 {
		st = append(st, row("SMA 50", price(res.Indicators.SMA50)))
	}
	b.WriteString(sectionStyle.Render(strings.Join(st, "\n")))
	b.WriteString("\n")

	var zones []string
	for _, ob := range activeOrderBlocks(a.OrderBlocks, 3) {
		zones = append(zones, row("Order block", fmt.Sprintf("%s %s - %s  str %.2f", tone(string(ob.Type)), price(ob.Bottom), price(ob.Top), ob.Strength)))
	}
	for _, g := range openGaps(a.FairValueGaps, 3) {
		zones = append(zones, row("FVG", fmt.Sprintf("%s %s - %s", tone(string(g.Type)), price(g.Bottom), price(g.Top))))
	}
	for _, l := range a.Liquidity {
		if !l.Swept {
			zones = append(zones, row("Liquidity", fmt.Sprintf("%s @ %s", l.Type, price(l.Price))))
		}
	}
	if len(zones) > 0 {
		b.WriteString(sectionStyle.Render(strings.Join(zones, "\n")))
		b.WriteString("\n")
	}

	if s := res.Sentiment; s != nil {
		news := []string{row("News", fmt.Sprintf("%s  score %+.0f  conf %.0f%%  (%d articles)",
			tone(strings.ToLower(string(s.Direction))), s.SentimentScore, s.Confidence, s.ArticleCount))}
		for i, h := range s.Headlines {
			if i == 3 {
				break
			}
			news = append(news, dimStyle.Render("  "+truncate(h, 70)))
		}
		b.WriteString(sectionStyle.Render(strings.Join(news, "\n")))
		b.WriteString("\n")
	} else if res.SentimentErr != nil {
		b.WriteString(dimStyle.Render("news unavailable: "+res.SentimentErr.Error()) + "\n")
	}

	b.WriteString(renderOutcome(spec, res))
	return b.String()
}

func renderOutcome(spec model.InstrumentSpec, res *strategy.Result) string {
	sig := res.Signal
	if sig == nil {
		return sectionStyle.Render(row("Outcome", neutralStyle.Render(string(res.Outcome)))) + "\n"
	}
	price := func(v float64) string { return fmtPrice(spec, v) }
	lines := []string{
		row("Signal", tone(string(sig.Action))+fmt.Sprintf("  confidence %d%%", sig.ConfidenceOverall)),
		row("Entry", price(sig.Entry)),
		row("Stop", fmt.Sprintf("%s  (%.1f pips)", price(sig.StopLoss), spec.Pips(sig.Risk()))),
		row("Targets", fmt.Sprintf("%s / %s / %s", price(sig.TakeProfit1), price(sig.TakeProfit2), price(sig.TakeProfit3))),
		row("R:R", fmt.Sprintf("%.2f", sig.RiskRewardRatio)),
		row("Scores", fmt.Sprintf("SMC %.0f  tech %.0f  news %.0f", sig.ConfidenceSMC, sig.ConfidenceTechnical, sig.ConfidenceSentiment)),
	}
	for _, r := range sig.Reasons {
		lines = append(lines, dimStyle.Render("  • "+r))
	}
	return signalStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// RenderInstruments lists instruments with their market status at now.
func RenderInstruments(instruments map[string]model.InstrumentSpec, now time.Time) string {
	syms := make([]string, 0, len(instruments))
	for s := range instruments {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	var lines []string
	for _, s := range syms {
		spec := instruments[s]
		status := markethours.StatusString(spec, now)
		st := bullStyle
		if !markethours.IsOpen(spec, now) {
			st = bearStyle
		}
		lines = append(lines, fmt.Sprintf("%-8s %-7s pip %-8g %s", s, spec.Class, spec.PipSize, st.Render(status)))
	}
	return titleStyle.Render("Instruments") + "\n" + sectionStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// RenderSignals prints a compact signal table, newest first.
func RenderSignals(signals []model.Signal, instruments map[string]model.InstrumentSpec) string {
	if len(signals) == 0 {
		return dimStyle.Render("no signals") + "\n"
	}
	lines := []string{dimStyle.Render(fmt.Sprintf("%-16s %-8s %-4s %-4s %12s %12s %5s  %s", "time", "symbol", "tf", "side", "entry", "stop", "conf", "status"))}
	for _, s := range signals {
		spec := instruments[s.Symbol]
		lines = append(lines, fmt.Sprintf("%-16s %-8s %-4s %-4s %12s %12s %4d%%  %s",
			s.Timestamp.UTC().Format("2006-01-02 15:04"), s.Symbol, s.Timeframe, s.Action,
			fmtPrice(spec, s.Entry), fmtPrice(spec, s.StopLoss), s.ConfidenceOverall, tone(string(s.Status))))
	}
	return sectionStyle.Width(100).Render(strings.Join(lines, "\n")) + "\n"
}

func fmtPrice(spec model.InstrumentSpec, v float64) string {
	if spec.Decimals > 0 {
		return fmt.Sprintf("%.*f", spec.Decimals, v)
	}
	return fmt.Sprintf("%.5g", v)
}

// activeOrderBlocks returns up to n unmitigated blocks, newest first.
func activeOrderBlocks(obs []smc.OrderBlock, n int) []smc.OrderBlock {
	var out []smc.OrderBlock
	for i := len(obs) - 1; i >= 0 && len(out) < n; i-- {
		if !obs[i].Mitigated {
			out = append(out, obs[i])
		}
	}
	return out
}

func openGaps(gaps []smc.FairValueGap, n int) []smc.FairValueGap {
	var out []smc.FairValueGap
	for i := len(gaps) - 1; i >= 0 && len(out) < n; i-- {
		if !gaps[i].Filled {
			out = append(out, gaps[i])
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
