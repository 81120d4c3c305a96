package cmd

import (
	"errors"
	"fmt"

	"github.com/agarwalvipin/crawlai/internal/clock/system"
	"github.com/agarwalvipin/crawlai/internal/crawler"
	"github.com/agarwalvipin/crawlai/internal/hash/sha256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts a recursive crawl from one or more seed URLs",
		Long: `Initiates a breadth-first crawl of the start URL's site. Pages are
fetched statically first and escalated to a headless browser when the
content looks script-generated, extracted with the configured strategy,
deduplicated, and appended to the output file as JSON lines.`,
		RunE: runCrawlCommand,
	}

	flags := cmd.Flags()
	flags.StringSlice("start-url", nil, "seed URL to crawl (repeatable)")
	flags.StringSlice("allowed-domain", nil, "extra domain considered in scope (repeatable)")
	flags.Int("max-pages", 0, "stop after this many accepted pages (0 uses the default budget)")
	flags.Int("max-depth", 0, "maximum link depth from the seeds")
	flags.Int("workers", 0, "number of concurrent crawl workers")
	flags.String("extraction-strategy", "", "content extraction strategy: heuristic, css, xpath, or llm")
	flags.String("css-selector", "", "selector for the css extraction strategy")
	flags.String("xpath", "", "expression for the xpath extraction strategy")
	flags.String("output-file", "", "path of the JSON-lines output file")
	flags.String("checkpoint-file", "", "path of the dedup checkpoint to load and save")
	flags.String("delay-override", "", "minimum delay between same-domain requests, in seconds or duration form (2, 0.5, 1500ms)")
	flags.Bool("render", false, "enable headless rendering of script-heavy pages")

	_ = cmd.MarkFlagRequired("start-url")
	return cmd
}

// crawlFlagKeys maps flag names to their configuration keys.
var crawlFlagKeys = map[string]string{
	"start-url":           "crawler.start_urls",
	"allowed-domain":      "crawler.allowed_domains",
	"max-pages":           "crawler.max_pages",
	"max-depth":           "crawler.max_depth",
	"workers":             "crawler.workers",
	"extraction-strategy": "extract.strategy",
	"css-selector":        "extract.css_selector",
	"xpath":               "extract.xpath",
	"output-file":         "crawler.output_file",
	"checkpoint-file":     "crawler.checkpoint_file",
	"delay-override":      "crawler.delay_override",
	"render":              "render.enabled",
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	v, err := loadViper()
	if err != nil {
		return err
	}
	for flag, key := range crawlFlagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	logger, err := buildLogger(v)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := crawler.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("load crawler config: %w", err)
	}

	engine, err := buildCrawlerEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(cmd.Context()); cerr != nil {
			logger.Warn("Failed to close engine", zap.Error(cerr))
		}
	}()

	if err := engine.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}

	stats := engine.Stats()
	logger.Info("Crawl command finished.",
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

func buildCrawlerEngine(cfg crawler.Config, logger *zap.Logger) (*crawler.Engine, error) {
	fetcher := crawler.NewCollyFetcher(cfg, logger)

	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	extractor, err := buildExtractor(cfg, clk)
	if err != nil {
		return nil, err
	}

	sink, err := crawler.NewJSONLinesSink(cfg.OutputFile, logger)
	if err != nil {
		return nil, err
	}

	robots := crawler.NewRobotsCache(cfg.UserAgent, cfg.EffectiveDelay(), logger)
	retry := crawler.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	detector := crawler.NewHeuristicDetector(cfg.DetectorMinHTMLBytes)

	return crawler.NewEngine(
		cfg,
		fetcher,
		renderer,
		detector,
		extractor,
		robots,
		retry,
		sink,
		sha256.New(),
		clk,
		logger,
	)
}

func buildRenderer(cfg crawler.Config, logger *zap.Logger) (crawler.Renderer, error) {
	if !cfg.RenderEnabled {
		return nil, nil
	}
	renderer, err := crawler.NewChromedpRenderer(cfg, logger)
	switch {
	case err == nil:
		return renderer, nil
	case errors.Is(err, crawler.ErrRendererDisabled):
		logger.Warn("Renderer disabled despite feature flag; falling back to static fetches")
		return nil, nil
	default:
		return nil, fmt.Errorf("init renderer: %w", err)
	}
}

func buildExtractor(cfg crawler.Config, clk crawler.Clock) (crawler.Extractor, error) {
	switch cfg.Strategy {
	case crawler.StrategyHeuristic:
		return crawler.NewHeuristicExtractor(cfg.MinTextLength, cfg.IncludeHTML, clk), nil
	case crawler.StrategyCSS:
		return crawler.NewCSSExtractor(cfg.CSSSelector, cfg.MinTextLength, cfg.IncludeHTML, clk), nil
	case crawler.StrategyXPath:
		return crawler.NewXPathExtractor(cfg.XPathExpr, cfg.MinTextLength, cfg.IncludeHTML, clk), nil
	case crawler.StrategyLLM:
		return crawler.NewLLMExtractor(cfg.LLMMaxHTMLBytes, cfg.MinTextLength, cfg.IncludeHTML, clk)
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", cfg.Strategy)
	}
}
