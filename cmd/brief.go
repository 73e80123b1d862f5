package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/research-brief/internal/model"
)

var (
	briefSummary     string
	briefUserID      string
	briefContextFile string
	briefBackground  bool
	briefJSON        bool
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Generate a research brief for a business idea",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := model.ResearchRequest{Summary: briefSummary, UserID: briefUserID}
		if briefContextFile != "" {
			cc, err := loadClarifyingContext(briefContextFile)
			if err != nil {
				return err
			}
			req.ClarifyingContext = cc
		}

		if briefBackground {
			cfg.Research.BackgroundProofSignals = true
		}
		p, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		resp, err := p.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		zap.L().Info("brief complete",
			zap.String("run_id", resp.RunID),
			zap.String("industry", resp.Result.IndustryTag),
			zap.Int("errors", len(resp.Errors)),
			zap.Int("total_tokens", resp.TokenUsage.Total.TotalTokens),
		)

		out := cmd.OutOrStdout()
		if briefJSON {
			return writeJSON(out, resp)
		}
		renderBrief(out, resp)
		return nil
	},
}

// contextFile takes the snake_case keys written in YAML as well as the
// camelCase keys the HTTP API uses, so a saved request body loads as is.
type contextFile struct {
	UserAnswers       map[string]string `yaml:"user_answers"`
	UserAnswersAPI    map[string]string `yaml:"userAnswers"`
	AIAssumptions     map[string]string `yaml:"ai_assumptions"`
	AIAssumptionsAPI  map[string]string `yaml:"aiAssumptions"`
	ContextSummary    string            `yaml:"context_summary"`
	ContextSummaryAPI string            `yaml:"contextSummary"`
}

// loadClarifyingContext reads founder answers and assumptions from a YAML
// or JSON file.
func loadClarifyingContext(path string) (*model.ClarifyingContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read context file")
	}
	var f contextFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse context file")
	}
	return &model.ClarifyingContext{
		UserAnswers:    mergeAnswers(f.UserAnswers, f.UserAnswersAPI),
		AIAssumptions:  mergeAnswers(f.AIAssumptions, f.AIAssumptionsAPI),
		ContextSummary: cmp.Or(f.ContextSummary, f.ContextSummaryAPI),
	}, nil
}

func mergeAnswers(a, b map[string]string) map[string]string {
	if len(b) == 0 {
		return a
	}
	out := maps.Clone(b)
	if out == nil {
		out = make(map[string]string, len(a))
	}
	maps.Copy(out, a)
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderBrief prints a brief as tables for terminal reading.
func renderBrief(w io.Writer, resp *model.ResearchResponse) {
	b := resp.Result

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Research brief %s", resp.RunID)
	tw.AppendRows([]table.Row{
		{"Industry", b.IndustryTag},
		{"Business type", b.BusinessType},
		{"Description", b.Description},
		{"Problem", b.Problem},
		{"Why now", strings.Join(b.WhyNow, "\n")},
		{"Positioning", b.Competition.Positioning},
		{"Primary keyword", b.Keywords.PrimaryKeyword},
		{"Search volume", fmt.Sprintf("%d/mo (%s)", b.Keywords.TotalSearchVolume, b.Keywords.Source)},
		{"Demand stage", b.ProofSignalStage},
		{"Tokens", resp.TokenUsage.Total.TotalTokens},
		{"Est. cost", fmt.Sprintf("$%.4f", resp.EstimatedCostUSD)},
	})
	if resp.IsBackgroundJob {
		tw.AppendRow(table.Row{"Background job", resp.BackgroundJobID})
	}
	tw.Render()

	if len(b.Keywords.Keywords) > 0 {
		kt := table.NewWriter()
		kt.SetOutputMirror(w)
		kt.AppendHeader(table.Row{"Keyword", "Intent", "Volume", "CPC", "Competition", "Growth"})
		for _, k := range b.Keywords.Keywords {
			kt.AppendRow(table.Row{
				k.Keyword, k.Intent, k.SearchVolume,
				fmt.Sprintf("%.2f", k.CPC),
				fmt.Sprintf("%.2f", k.Competition),
				fmt.Sprintf("%+.0f%%", k.Growth*100),
			})
		}
		kt.Render()
	}

	if len(b.Competition.Competitors) > 0 {
		ct := table.NewWriter()
		ct.SetOutputMirror(w)
		ct.AppendHeader(table.Row{"Competitor", "Website", "Strengths", "Weaknesses"})
		for _, c := range b.Competition.Competitors {
			ct.AppendRow(table.Row{c.Name, c.Website, strings.Join(c.Strengths, "; "), strings.Join(c.Weaknesses, "; ")})
		}
		ct.Render()
	}

	if len(b.ProofSignals) > 0 {
		pt := table.NewWriter()
		pt.SetOutputMirror(w)
		pt.AppendHeader(table.Row{"Signal", "Evidence", "Sources"})
		for _, s := range b.ProofSignals {
			pt.AppendRow(table.Row{s.Description, s.Evidence, strings.Join(s.Sources, "\n")})
		}
		pt.Render()
	}

	if len(resp.Errors) > 0 {
		et := table.NewWriter()
		et.SetOutputMirror(w)
		et.SetTitle("Degraded components")
		et.AppendHeader(table.Row{"Component", "Kind", "Retryable", "Message"})
		for _, e := range resp.Errors {
			et.AppendRow(table.Row{e.Component, e.Kind, e.Retryable, e.Message})
		}
		et.Render()
	}
}

func init() {
	briefCmd.Flags().StringVar(&briefSummary, "summary", "", "business idea summary (required)")
	briefCmd.Flags().StringVar(&briefUserID, "user-id", "", "requesting user id")
	briefCmd.Flags().StringVar(&briefContextFile, "context", "", "YAML file with clarifying context")
	briefCmd.Flags().BoolVar(&briefBackground, "background", false, "run proof-signal research as a background job")
	briefCmd.Flags().BoolVar(&briefJSON, "json", false, "print the full response as JSON")
	_ = briefCmd.MarkFlagRequired("summary")
	rootCmd.AddCommand(briefCmd)
}
