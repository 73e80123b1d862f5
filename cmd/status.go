package main

import (
	"context"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/server"
)

var (
	statusWait    bool
	statusSummary string
	statusJSON    bool
)

// jobChecker is the slice of the pipeline the status command needs.
type jobChecker interface {
	JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	ResolveJob(summary string, st *model.JobStatus) (model.ProofSignalsBundle, bool)
}

// jobAwaiter blocks until a job is terminal.
type jobAwaiter func(ctx context.Context, jobID string, cfg resilience.PollConfig) (*model.JobStatus, error)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Check a background proof-signal research job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		var await jobAwaiter
		if statusWait {
			await = p.Jobs().Await
		}
		resp, err := checkJob(cmd.Context(), p, await, args[0], statusSummary)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			return writeJSON(out, resp)
		}
		renderJob(out, resp)
		return nil
	},
}

// checkJob reads a job's status, waiting for completion when await is set,
// and resolves its proof signals once terminal if summary is given.
func checkJob(ctx context.Context, jc jobChecker, await jobAwaiter, jobID, summary string) (*server.JobResponse, error) {
	var (
		st  *model.JobStatus
		err error
	)
	if await != nil {
		ctx, cancel := context.WithTimeout(ctx, cfg.Research.Timeout())
		defer cancel()
		st, err = await(ctx, jobID, resilience.PollConfig{
			Interval: cfg.Research.PollInterval(),
			MaxPolls: cfg.Research.MaxPolls,
		})
	} else {
		st, err = jc.JobStatus(ctx, jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "job %s", jobID)
	}

	resp := &server.JobResponse{JobID: jobID, JobStatus: *st}
	if summary = strings.TrimSpace(summary); summary != "" {
		if b, ok := jc.ResolveJob(summary, st); ok {
			resp.ProofSignals = &b
		}
	}
	return resp, nil
}

func renderJob(w io.Writer, resp *server.JobResponse) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendRows([]table.Row{
		{"Job", resp.JobID},
		{"Status", resp.Status},
		{"Complete", resp.IsComplete},
	})
	if resp.Error != "" {
		tw.AppendRow(table.Row{"Error", resp.Error})
	}
	if resp.ProofSignals != nil {
		tw.AppendRow(table.Row{"Stage", resp.ProofSignals.Stage})
		tw.AppendRow(table.Row{"Summary", resp.ProofSignals.Summary})
	}
	tw.Render()

	if resp.ProofSignals == nil || len(resp.ProofSignals.Signals) == 0 {
		return
	}
	pt := table.NewWriter()
	pt.SetOutputMirror(w)
	pt.AppendHeader(table.Row{"Signal", "Evidence", "Sources"})
	for _, s := range resp.ProofSignals.Signals {
		pt.AppendRow(table.Row{s.Description, s.Evidence, strings.Join(s.Sources, "\n")})
	}
	pt.Render()
}

func init() {
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "poll until the job finishes")
	statusCmd.Flags().StringVar(&statusSummary, "summary", "", "idea summary, used to resolve proof signals once the job ends")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}
