// Package cli implements smcctl, the operator command line: one-off
// analysis of a symbol, instrument status and the stored signal history.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smc-systemv1/config"
	"smc-systemv1/internal/marketdata/yahoo"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/news"
	sqlitestore "smc-systemv1/internal/store/sqlite"
	"smc-systemv1/internal/strategy"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "smcctl",
		Short: "smcctl - Smart Money Concepts analysis toolkit",
		Long: `smcctl runs the SMC analysis and signal synthesizer outside the live engine.
It can analyse a candle file or Yahoo Finance history, show market hours for the
configured instruments and list signals stored by the engine.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.InstrumentsPath, "instruments", cfg.InstrumentsPath, "Instruments file")

	rootCmd.AddCommand(newAnalyzeCmd(cfg))
	rootCmd.AddCommand(newInstrumentsCmd(cfg))
	rootCmd.AddCommand(newSignalsCmd(cfg))
	return rootCmd
}

// AnalyzeOptions selects the candle source and output of one analysis.
type AnalyzeOptions struct {
	Symbol   string
	TF       string
	File     string
	Bars     int
	News     bool
	JSON     bool
	Strategy string
	Targets  string
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	opts := AnalyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [SYMBOL]",
		Short: "Run SMC analysis and signal synthesis for a symbol",
		Long: `Analyse one symbol and print structure, zones, news and the resulting signal.
Example: smcctl analyze XAUUSD --tf 1h --bars 300 --news`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Symbol = strings.ToUpper(args[0])
			return RunAnalyze(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TF, "tf", "1h", "Timeframe (1m, 5m, 15m, 30m, 1h, 4h, 1d)")
	cmd.Flags().StringVar(&opts.File, "file", "", "Read candles from a .json or .csv file instead of Yahoo")
	cmd.Flags().IntVar(&opts.Bars, "bars", 300, "Number of candles to fetch")
	cmd.Flags().BoolVar(&opts.News, "news", false, "Score news sentiment from the configured feeds")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", cfg.StrategyPath, "Strategy overrides file")
	cmd.Flags().StringVar(&opts.Targets, "targets", cfg.TargetPolicy, "Target policy (r_multiple, pips, levels)")
	return cmd
}

// RunAnalyze loads candles, runs one synthesis pass and writes the report.
func RunAnalyze(ctx context.Context, w io.Writer, cfg *config.Config, opts AnalyzeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
	if err != nil {
		return err
	}
	spec := instruments[opts.Symbol]

	tf, err := model.ParseTimeframe(opts.TF)
	if err != nil {
		return err
	}
	label := model.TimeframeLabel(tf)

	var candles []model.Candle
	if opts.File != "" {
		candles, err = LoadCandleFile(opts.File)
	} else {
		yahooSymbol := spec.YahooSymbol
		if yahooSymbol == "" {
			yahooSymbol = opts.Symbol
		}
		fmt.Fprintf(w, "fetching %d %s bars of %s from Yahoo...\n", opts.Bars, label, yahooSymbol)
		candles, err = yahoo.History(ctx, yahooSymbol, tf, opts.Bars)
	}
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	scfg, err := config.LoadStrategy(opts.Strategy)
	if err != nil {
		return err
	}
	targets, err := strategy.PolicyByName(opts.Targets)
	if err != nil {
		return err
	}

	var sentiment model.SentimentProvider
	if opts.News {
		sentiment = newsProvider(cfg, instruments)
	}
	synth := strategy.NewSynthesizer(scfg, sentiment, instruments, targets)

	res, err := synth.Synthesize(ctx, strategy.Request{Symbol: opts.Symbol, Timeframe: label, Candles: candles})
	if err != nil {
		return err
	}

	if opts.JSON {
		return writeJSON(w, res)
	}
	_, err = io.WriteString(w, RenderResult(opts.Symbol, label, spec, res))
	return err
}

func newsProvider(cfg *config.Config, instruments map[string]model.InstrumentSpec) *news.Aggregator {
	var sources []news.Source
	for _, tmpl := range cfg.NewsRSSURLs {
		sources = append(sources, news.NewRSSSource(tmpl, 6*time.Second))
	}
	if cfg.NewsHTMLURL != "" {
		sources = append(sources, news.NewHTMLSource(cfg.NewsHTMLURL, cfg.NewsHTMLSel, 6*time.Second))
	}
	return news.NewAggregator(news.DefaultConfig(), instruments, sources...)
}

func writeJSON(w io.Writer, res *strategy.Result) error {
	out := struct {
		Outcome    strategy.Outcome     `json:"outcome"`
		Signal     *model.Signal        `json:"signal,omitempty"`
		Analysis   any                  `json:"analysis,omitempty"`
		Indicators any                  `json:"indicators"`
		Sentiment  *model.NewsSentiment `json:"sentiment,omitempty"`
		NewsError  string               `json:"news_error,omitempty"`
	}{
		Outcome:    res.Outcome,
		Signal:     res.Signal,
		Indicators: res.Indicators,
		Sentiment:  res.Sentiment,
	}
	if res.Analysis != nil {
		out.Analysis = res.Analysis
	}
	if res.SentimentErr != nil {
		out.NewsError = res.SentimentErr.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newInstrumentsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List instruments and their market status",
		RunE: func(cmd *cobra.Command, args []string) error {
			instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), RenderInstruments(instruments, time.Now()))
			return err
		},
	}
}

func newSignalsCmd(cfg *config.Config) *cobra.Command {
	var (
		dbPath string
		filter model.SignalFilter
		status string
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List stored signals, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				filter.Status = model.Status(status)
				if !filter.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			filter.Symbol = strings.ToUpper(filter.Symbol)

			instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
			if err != nil {
				return err
			}
			st, err := sqlitestore.New(sqlitestore.Config{DBPath: dbPath})
			if err != nil {
				return err
			}
			defer st.Close()

			signals, err := st.ListSignals(cmd.Context(), filter)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), RenderSignals(signals, instruments))
			return err
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.SQLitePath, "SQLite database path")
	cmd.Flags().StringVar(&filter.Symbol, "symbol", "", "Only this symbol")
	cmd.Flags().StringVar(&status, "status", "", "Only this status (active, hit_tp1, hit_tp2, hit_tp3, hit_sl, breakeven)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum rows")
	return cmd
}
