// Package config wires up Viper with defaults, environment variables, and an
// optional config file for the crawlai executable.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NewViper builds a Viper instance with crawler defaults applied. If path is
// non-empty the file must exist and parse; otherwise defaults and CRAWLAI_*
// environment variables are used.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)

	v.SetDefault("crawler.user_agent", "crawlai/1.0 (+https://github.com/agarwalvipin/crawlai)")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.allowed_domains", []string{})
	v.SetDefault("crawler.default_delay", "1s")
	v.SetDefault("crawler.delay_override", "0s")
	v.SetDefault("crawler.per_domain_concurrency", 2)
	v.SetDefault("crawler.request_timeout", "15s")
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_base_delay", "250ms")
	v.SetDefault("crawler.retry_max_delay", "5s")
	v.SetDefault("crawler.prefer_same_host", false)
	v.SetDefault("crawler.output_file", "crawled_data.json")
	v.SetDefault("crawler.checkpoint_file", "")
	v.SetDefault("crawler.include_html", false)

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.timeout", "25s")
	v.SetDefault("render.max_concurrency", 2)
	v.SetDefault("render.scroll_steps", 5)
	v.SetDefault("render.scroll_settle", "750ms")

	v.SetDefault("detector.min_html_bytes", 2000)

	v.SetDefault("extract.strategy", "heuristic")
	v.SetDefault("extract.min_text_length", 80)
	v.SetDefault("extract.css_selector", "")
	v.SetDefault("extract.xpath", "")
	v.SetDefault("extract.llm_max_html_bytes", 4000)
}
