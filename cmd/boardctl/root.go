package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/boardroom/internal/analysisclient"
	"github.com/linnemanlabs/boardroom/internal/attachment"
	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/history"
	"github.com/linnemanlabs/boardroom/internal/orchestrator"
	"github.com/linnemanlabs/boardroom/internal/report"
)

const (
	defaultAnalysisURL = "http://localhost:8000"
	envAnalysisURL     = "BOARDCTL_ANALYSIS_URL"
	envAnalysisToken   = "BOARDCTL_ANALYSIS_TOKEN"
	renderWidth        = 100
	maxFileBytes       = 5 << 20
)

// env is the process surroundings a command runs in.
type env struct {
	stdout    io.Writer
	stderr    io.Writer
	getenv    func(string) string
	clipboard report.Clipboard
	now       func() time.Time
}

type globalFlags struct {
	analysisURL string
	token       string
	timeout     time.Duration
}

func (g *globalFlags) client() *analysisclient.Client {
	return analysisclient.New(g.analysisURL,
		analysisclient.WithToken(g.token),
		analysisclient.WithTimeout(g.timeout),
	)
}

func newRootCmd(e env) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Put decisions to the AI board council",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)

	url := e.getenv(envAnalysisURL)
	if url == "" {
		url = defaultAnalysisURL
	}
	root.PersistentFlags().StringVar(&g.analysisURL, "analysis-url", url, "base URL of the analysis service (env "+envAnalysisURL+")")
	root.PersistentFlags().StringVar(&g.token, "token", e.getenv(envAnalysisToken), "bearer token for the analysis service (env "+envAnalysisToken+")")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 0, "how long to wait for the analysis service, 0 waits indefinitely")

	root.AddCommand(
		newAnalyzeCmd(e, &g),
		newHistoryCmd(e, &g),
		newReportCmd(e, &g),
		newShareCmd(e, &g),
	)
	return root
}

func newAnalyzeCmd(e env, g *globalFlags) *cobra.Command {
	var (
		mode      string
		file      string
		exportDir string
		share     bool
		render    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze TEXT",
		Short: "Convene the council on a decision",
		Long: `Submit a decision to the council and print the consensus.

The decision text may be given as arguments or piped on stdin ("-").`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "-" {
				b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxFileBytes))
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}

			m, ok := council.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (want enterprise or startup)", mode)
			}
			sub := council.Submission{Text: text, Mode: m}
			if file != "" {
				att, err := readAttachment(file)
				if err != nil {
					return err
				}
				sub.Attachment = att
			}

			result, err := analyze(cmd, g.client(), sub)
			if err != nil {
				return err
			}

			if render {
				out, err := report.Render(report.Document(result), renderWidth)
				if err != nil {
					return err
				}
				fmt.Fprint(e.stdout, out)
			} else {
				printResult(e.stdout, result)
			}

			if exportDir != "" {
				if err := exportReport(cmd, e, exportDir, result); err != nil {
					return err
				}
			}
			if share {
				return shareResult(e, result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(council.ModeEnterprise), "council mode: enterprise or startup")
	cmd.Flags().StringVar(&file, "file", "", "supporting document to attach")
	cmd.Flags().StringVar(&exportDir, "export", "", "write the markdown report into this directory")
	cmd.Flags().BoolVar(&share, "share", false, "copy a one-line summary to the clipboard")
	cmd.Flags().BoolVar(&render, "render", false, "print the full rendered report instead of the summary")
	return cmd
}

// analyze drives one submission through the orchestrator so the CLI gets the
// same validation, failure messages and sanitizing as the console.
func analyze(cmd *cobra.Command, client *analysisclient.Client, sub council.Submission) (*council.AnalysisResult, error) {
	orch := orchestrator.New(client, nil, log.Nop(), orchestrator.Hooks{})
	done, err := orch.Submit(cmd.Context(), sub)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-cmd.Context().Done():
		return nil, cmd.Context().Err()
	}

	snap := orch.Snapshot()
	if snap.State == orchestrator.StateFailed {
		return nil, errors.New(snap.Message)
	}
	// the report path applies its own placeholders, so hand back the raw result
	result, ok := orch.Result()
	if !ok {
		return nil, orchestrator.ErrNoResult
	}
	return result, nil
}

func readAttachment(path string) (*council.Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("attachment: %w", err)
	}
	if fi.Size() > maxFileBytes {
		return nil, fmt.Errorf("attachment %s is larger than %d bytes", path, maxFileBytes)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the operator's own argument
	if err != nil {
		return nil, fmt.Errorf("attachment: %w", err)
	}
	att := &council.Attachment{Name: filepath.Base(path), Data: data}
	// catch unsupported files before the council is convened
	if _, err := attachment.Extract(att); err != nil {
		return nil, fmt.Errorf("attachment %s: %w", path, err)
	}
	return att, nil
}

func newHistoryCmd(e env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history [QUERY]",
		Short: "List past analyses, optionally filtered by decision text or verdict",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadHistory(cmd, g)
			if err != nil {
				return err
			}
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			printHistory(e.stdout, idx.Entries(), query)
			return nil
		},
	}
}

func newReportCmd(e env, g *globalFlags) *cobra.Command {
	var (
		render bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "report INDEX",
		Short: "Print the markdown report of a past analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := historyEntry(cmd, g, args[0])
			if err != nil {
				return err
			}
			if outDir != "" {
				return exportReport(cmd, e, outDir, entry)
			}
			doc := report.Document(entry)
			if render {
				if doc, err = report.Render(doc, renderWidth); err != nil {
					return err
				}
			}
			fmt.Fprint(e.stdout, doc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render the markdown for the terminal")
	cmd.Flags().StringVar(&outDir, "out", "", "write the report into this directory instead of printing it")
	cmd.MarkFlagsMutuallyExclusive("render", "out")
	return cmd
}

func newShareCmd(e env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "share INDEX",
		Short: "Copy a one-line summary of a past analysis to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := historyEntry(cmd, g, args[0])
			if err != nil {
				return err
			}
			return shareResult(e, entry)
		},
	}
}

func loadHistory(cmd *cobra.Command, g *globalFlags) (*history.Index, error) {
	var outcome string
	idx := history.NewIndex(g.client(), log.Nop(), history.Hooks{
		OnRefresh: func(o string, _ int) { outcome = o },
	})
	idx.Refresh(cmd.Context())
	switch outcome {
	case history.OutcomeOK:
		return idx, nil
	case history.OutcomeMalformed:
		return nil, fmt.Errorf("history from %s is not a list of analyses", g.analysisURL)
	default:
		return nil, fmt.Errorf("could not load history from %s", g.analysisURL)
	}
}

func historyEntry(cmd *cobra.Command, g *globalFlags, arg string) (*council.HistoryEntry, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid index %q", arg)
	}
	idx, err := loadHistory(cmd, g)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.At(i)
	if !ok {
		return nil, fmt.Errorf("no analysis at index %d (history holds %d)", i, idx.Len())
	}
	return entry, nil
}

func exportReport(cmd *cobra.Command, e env, dir string, result *council.AnalysisResult) error {
	path, err := report.DirExporter{Dir: dir}.Export(cmd.Context(), report.Filename(e.now()), report.Document(result))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "report written to %s\n", path)
	return nil
}

func shareResult(e env, result *council.AnalysisResult) error {
	summary := report.ShareSummary(result)
	if e.clipboard == nil {
		return report.ErrClipboardUnavailable
	}
	if err := e.clipboard.WriteAll(summary); err != nil {
		return fmt.Errorf("share: %w", err)
	}
	fmt.Fprintf(e.stdout, "copied to clipboard: %s\n", summary)
	return nil
}
