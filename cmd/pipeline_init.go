package main

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/pipeline"
	"github.com/sells-group/research-brief/internal/taxonomy"
	anthropicpkg "github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/keywords"
	"github.com/sells-group/research-brief/pkg/perplexity"
)

// clients holds the provider clients built from config. Unconfigured
// providers are left nil so their tiers fall through.
type clients struct {
	Anthropic  anthropicpkg.Client
	Perplexity perplexity.Client
	Keywords   keywords.Client
}

func buildClients(c *config.Config) clients {
	var out clients

	if c.Anthropic.Key != "" {
		out.Anthropic = anthropicpkg.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL)
	} else {
		zap.L().Warn("RESEARCH_ANTHROPIC_KEY not set, every LLM component will use its fallback")
	}

	if c.Perplexity.Key != "" {
		out.Perplexity = perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
	} else {
		zap.L().Debug("RESEARCH_PERPLEXITY_KEY not set, perplexity proof signals disabled")
	}

	if c.Keywords.Configured() {
		out.Keywords = keywords.NewClient(c.Keywords.Login, c.Keywords.Key,
			keywords.WithBaseURL(c.Keywords.BaseURL),
			keywords.WithLocale(c.Keywords.Location, c.Keywords.Language),
			keywords.WithRateLimit(c.Keywords.RequestsPerSecond),
		)
		zap.L().Info("keyword provider enabled")
	}

	return out
}

// initPipeline builds the Pipeline from the loaded config.
func initPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if path := c.Research.TaxonomyFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "read taxonomy file")
		}
		tx, err := taxonomy.Parse(data)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy file %s", path)
		}
		opts = append(opts, pipeline.WithTaxonomy(tx))
		zap.L().Info("using custom taxonomy", zap.String("path", path), zap.Int("industries", len(tx.Industries)))
	}

	cl := buildClients(c)
	return pipeline.New(c, cl.Anthropic, cl.Perplexity, cl.Keywords, nil, opts...), nil
}
