package cmd

import (
	"testing"
	"time"

	"github.com/agarwalvipin/crawlai/internal/clock/system"
	"github.com/agarwalvipin/crawlai/internal/crawler"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRootCommandHasCrawlSubcommand(t *testing.T) {
	root := newRootCmd()

	crawl, _, err := root.Find([]string{"crawl"})
	require.NoError(t, err)
	require.Equal(t, "crawl", crawl.Name())

	for _, name := range []string{
		"start-url", "max-pages", "max-depth", "workers",
		"extraction-strategy", "output-file", "checkpoint-file",
		"delay-override", "render",
	} {
		require.NotNil(t, crawl.Flags().Lookup(name), "missing flag %s", name)
	}
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCrawlRequiresStartURL(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"crawl"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "start-url")
}

func TestBuildExtractor(t *testing.T) {
	clk := system.New()

	tests := []struct {
		name     string
		cfg      crawler.Config
		strategy string
		wantErr  bool
	}{
		{name: "heuristic", cfg: crawler.Config{Strategy: crawler.StrategyHeuristic}, strategy: "heuristic"},
		{name: "css", cfg: crawler.Config{Strategy: crawler.StrategyCSS, CSSSelector: "article"}, strategy: "css"},
		{name: "xpath", cfg: crawler.Config{Strategy: crawler.StrategyXPath, XPathExpr: "//p"}, strategy: "xpath"},
		{name: "unknown", cfg: crawler.Config{Strategy: "magic"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := buildExtractor(tt.cfg, clk)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.strategy, extractor.Strategy())
		})
	}
}

func TestBuildRendererDisabled(t *testing.T) {
	renderer, err := buildRenderer(crawler.Config{RenderEnabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, renderer)

	// Rendering enabled but with no tab budget degrades to static fetching.
	cfg := crawler.Config{RenderEnabled: true, RenderMaxConcurrency: 0, RenderTimeout: time.Second}
	renderer, err = buildRenderer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, renderer)
}
