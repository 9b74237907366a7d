package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/runs"
	"github.com/spf13/cobra"
)

func runCMD(cfgPath *string) *cobra.Command {
	var req runs.Request
	var out, format string
	run := &cobra.Command{
		Use:   "run",
		Short: "Research a topic from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "md", "html":
			default:
				return fmt.Errorf("unknown format %q (json, md, html)", format)
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			rep, err := research(ctx, a.manager, req, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return writeReport(rep, format, out, cmd.OutOrStdout())
		},
	}
	run.Flags().StringVar(&req.Topic, "topic", "", "research topic")
	run.Flags().StringVar(&req.Pipeline, "pipeline", core.PipelineTeam, "pipeline: team or decompose")
	run.Flags().StringVar(&req.APIKey, "api-key", "", "LLM API key (default from config or environment)")
	run.Flags().StringVarP(&out, "out", "o", "", "write the report to this file instead of stdout (\".\" picks research_report_<topic>.<format>)")
	run.Flags().StringVar(&format, "format", "md", "report format: json, md or html")
	return run
}

// research starts one run and renders its progress to progress until it ends.
func research(ctx context.Context, mgr *runs.Manager, req runs.Request, progress io.Writer) (report.Report, error) {
	rec, err := mgr.Start(ctx, req)
	if err != nil {
		return report.Report{}, err
	}
	history, ch, unsubscribe, err := mgr.Subscribe(ctx, rec.ID)
	if err != nil {
		return report.Report{}, err
	}
	defer unsubscribe()

	bar := &progressBar{w: progress}
	var last core.Event
	for _, e := range history {
		bar.render(e)
		last = e
	}
	for !last.Terminal() {
		select {
		case <-ctx.Done():
			_ = mgr.Cancel(context.Background(), rec.ID)
			ctx = context.Background()
		case e, ok := <-ch:
			if !ok {
				return report.Report{}, fmt.Errorf("run %s: event stream closed early", rec.ID)
			}
			bar.render(e)
			last = e
		}
	}
	if last.Type != core.EventRunCompleted {
		return report.Report{}, fmt.Errorf("%s", last.Message)
	}
	return mgr.Report(context.Background(), rec.ID)
}

func writeReport(rep report.Report, format, path string, stdout io.Writer) error {
	var body []byte
	switch format {
	case "json":
		b, err := rep.JSON()
		if err != nil {
			return err
		}
		body = append(b, '\n')
	case "html":
		body = []byte(rep.HTML())
	default:
		body = []byte(rep.Markdown())
	}
	if path == "" {
		_, err := stdout.Write(body)
		return err
	}
	if path == "." {
		path = report.Filename(rep.Topic, format)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "report written to %s\n", path)
	return nil
}
