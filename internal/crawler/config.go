package crawler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Extraction strategy names accepted by the engine.
const (
	StrategyHeuristic = "heuristic"
	StrategyCSS       = "css"
	StrategyXPath     = "xpath"
	StrategyLLM       = "llm"
)

// maxPagesCeiling caps a run that did not set an explicit page budget.
const maxPagesCeiling = 10000

// Config captures every knob that influences a crawl run. All values
// originate from Viper so the engine can be configured via files, env vars,
// or CLI flags.
type Config struct {
	StartURLs      []string
	AllowedDomains []string
	UserAgent      string

	Workers  int
	MaxDepth int
	MaxPages int

	DefaultDelay         time.Duration
	DelayOverride        time.Duration
	PerDomainConcurrency int

	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	RenderEnabled        bool
	RenderTimeout        time.Duration
	RenderMaxConcurrency int
	ScrollSteps          int
	ScrollSettle         time.Duration

	DetectorMinHTMLBytes int

	Strategy        string
	MinTextLength   int
	CSSSelector     string
	XPathExpr       string
	LLMMaxHTMLBytes int

	IncludeHTML    bool
	PreferSameHost bool

	OutputFile     string
	CheckpointFile string
}

// LoadConfig materializes a Config from Viper and validates it.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		StartURLs:            v.GetStringSlice("crawler.start_urls"),
		AllowedDomains:       v.GetStringSlice("crawler.allowed_domains"),
		UserAgent:            v.GetString("crawler.user_agent"),
		Workers:              v.GetInt("crawler.workers"),
		MaxDepth:             v.GetInt("crawler.max_depth"),
		MaxPages:             v.GetInt("crawler.max_pages"),
		DefaultDelay:         v.GetDuration("crawler.default_delay"),
		PerDomainConcurrency: v.GetInt("crawler.per_domain_concurrency"),
		RequestTimeout:       v.GetDuration("crawler.request_timeout"),
		MaxRetries:           v.GetInt("crawler.max_retries"),
		RetryBaseDelay:       v.GetDuration("crawler.retry_base_delay"),
		RetryMaxDelay:        v.GetDuration("crawler.retry_max_delay"),
		RenderEnabled:        v.GetBool("render.enabled"),
		RenderTimeout:        v.GetDuration("render.timeout"),
		RenderMaxConcurrency: v.GetInt("render.max_concurrency"),
		ScrollSteps:          v.GetInt("render.scroll_steps"),
		ScrollSettle:         v.GetDuration("render.scroll_settle"),
		DetectorMinHTMLBytes: v.GetInt("detector.min_html_bytes"),
		Strategy:             v.GetString("extract.strategy"),
		MinTextLength:        v.GetInt("extract.min_text_length"),
		CSSSelector:          v.GetString("extract.css_selector"),
		XPathExpr:            v.GetString("extract.xpath"),
		LLMMaxHTMLBytes:      v.GetInt("extract.llm_max_html_bytes"),
		IncludeHTML:          v.GetBool("crawler.include_html"),
		PreferSameHost:       v.GetBool("crawler.prefer_same_host"),
		OutputFile:           v.GetString("crawler.output_file"),
		CheckpointFile:       v.GetString("crawler.checkpoint_file"),
	}
	override, err := parseDelay(v.GetString("crawler.delay_override"))
	if err != nil {
		return cfg, fmt.Errorf("crawler.delay_override: %w", err)
	}
	cfg.DelayOverride = override
	if cfg.MaxPages <= 0 || cfg.MaxPages > maxPagesCeiling {
		cfg.MaxPages = maxPagesCeiling
	}
	return cfg, cfg.Validate()
}

// parseDelay accepts either a Go duration ("1500ms") or a bare number of
// seconds ("2", "0.5").
func parseDelay(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("delay %q must not be negative", raw)
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid delay %q: use seconds or a duration", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return fmt.Errorf("crawler.start_urls must include at least one seed URL")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.PerDomainConcurrency <= 0 {
		return fmt.Errorf("crawler.per_domain_concurrency must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.RenderEnabled && c.RenderTimeout <= 0 {
		return fmt.Errorf("render.timeout must be > 0 when rendering is enabled")
	}
	if c.ScrollSteps < 0 {
		return fmt.Errorf("render.scroll_steps must be >= 0")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("crawler.output_file must be set")
	}
	switch c.Strategy {
	case StrategyHeuristic, StrategyLLM:
	case StrategyCSS:
		if c.CSSSelector == "" {
			return fmt.Errorf("extract.css_selector must be set for the css strategy")
		}
	case StrategyXPath:
		if c.XPathExpr == "" {
			return fmt.Errorf("extract.xpath must be set for the xpath strategy")
		}
	default:
		return fmt.Errorf("unknown extraction strategy %q", c.Strategy)
	}
	return nil
}

// EffectiveDelay returns the baseline per-domain delay: the larger of the
// configured default and the CLI override floor.
func (c Config) EffectiveDelay() time.Duration {
	if c.DelayOverride > c.DefaultDelay {
		return c.DelayOverride
	}
	return c.DefaultDelay
}
