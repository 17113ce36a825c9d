package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xpzouying/reels-autopost/configs"
	"github.com/xpzouying/reels-autopost/metrics"
	"github.com/xpzouying/reels-autopost/planner"
	"github.com/xpzouying/reels-autopost/poster"
	"github.com/xpzouying/reels-autopost/state"
)

func main() {
	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	opts.close()
	if err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	cfg        configs.Config
	logCloser  io.Closer
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	var runOpts poster.RunOptions

	root := &cobra.Command{
		Use:           "reels-autopost",
		Short:         "Post Google Drive videos to Instagram Reels, one item per run",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runAttempt(cmd.Context(), runOpts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+configs.DefaultFile+" if present)")
	addRunFlags(root, &runOpts)

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newPlanCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func addRunFlags(cmd *cobra.Command, o *poster.RunOptions) {
	cmd.Flags().StringVar(&o.Collection, "collection", "", "force this collection instead of the saved cursor")
	cmd.Flags().IntVar(&o.Ordinal, "item", 0, "force this item number (with --collection)")
}

// setup 加载配置和日志，出错时以非零状态退出
func (o *rootOptions) setup() error {
	cfg, err := configs.Load(o.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	closer, err := configs.SetupLogging(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	o.cfg = cfg
	o.logCloser = closer
	return nil
}

// close 关闭日志文件。RunE 出错时 cobra 不会执行 post-run，所以由 main 调用
func (o *rootOptions) close() {
	if o.logCloser != nil {
		o.logCloser.Close()
		o.logCloser = nil
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var runOpts poster.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one posting attempt (the default action)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runAttempt(cmd.Context(), runOpts)
		},
	}
	addRunFlags(cmd, &runOpts)
	return cmd
}

// runAttempt 尝试正常结束（包括失败）时都返回 0
func (o *rootOptions) runAttempt(ctx context.Context, runOpts poster.RunOptions) error {
	if runOpts.Collection == "" && runOpts.Ordinal != 0 {
		return fail(errors.New("--item requires --collection"))
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	service, err := NewPosterService(ctx, o.cfg, m)
	if err != nil {
		return fail(err)
	}

	report, err := service.RunAttempt(ctx, runOpts)
	if err != nil {
		return fail(err)
	}

	if o.cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(o.cfg.MetricsTextfile); err != nil {
			logrus.WithError(err).Warn("failed to write metrics textfile")
		}
	}

	printReport(os.Stdout, report)
	return nil
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the persisted posting state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := state.NewFileStore(opts.cfg.StatePath, opts.cfg.HistoryLimit).Load()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printState(cmd.OutOrStdout(), st, opts.cfg, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON record")
	return cmd
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var duration float64
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the segment plan for a source duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newPosterService(opts.cfg, nil, nil, nil)
			plan, err := service.Plan(duration)
			if err != nil {
				return fail(err)
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 0, "source duration in seconds")
	cmd.MarkFlagRequired("duration")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, MCP endpoint and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = opts.cfg.Port
			}
			service, err := NewPosterService(contextOrBackground(cmd.Context()), opts.cfg, metrics.New())
			if err != nil {
				return fail(err)
			}
			st := service.State()
			service.Metrics().SetState(st.ConsecutiveErrors, st.TotalPosts)

			return NewAppServer(service).Start(port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen address (default from config, :18060)")
	return cmd
}

func fail(err error) error {
	logrus.Error(err)
	return err
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// padRight pads s to width display columns, counting wide runes as two.
func padRight(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func printReport(w io.Writer, r *poster.Report) {
	fmt.Fprintf(w, "attempt %s: %s", r.AttemptID, r.Outcome)
	if r.Reason != "" {
		fmt.Fprintf(w, " (%s)", r.Reason)
	}
	fmt.Fprintln(w)
	if r.Item != "" {
		fmt.Fprintf(w, "  item:      %s/%s (part %d of %d)\n", r.Collection, r.Item, r.Ordinal, r.Total)
	}
	for _, s := range r.Segments {
		fmt.Fprintf(w, "  segment %d: %s %s\n", s.Index+1, padRight(s.Status, 14), s.MediaID)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error:     %s\n", r.Error)
	}
	if !r.Persisted && (r.Outcome == poster.OutcomeSuccess || r.Outcome == poster.OutcomeFailure) {
		fmt.Fprintln(w, "  warning:   state was not saved")
	}
}

func printState(w io.Writer, st *state.PostingState, cfg configs.Config, now time.Time) {
	fmt.Fprintf(w, "cursor:             %s part %d (cycle %d)\n", orDash(st.CursorCollection), st.CursorItem, st.Cycle)
	fmt.Fprintf(w, "completed:          %s\n", orDash(strings.Join(st.CompletedCollections, ", ")))
	fmt.Fprintf(w, "total posts:        %d\n", st.TotalPosts)
	fmt.Fprintf(w, "consecutive errors: %d/%d\n", st.ConsecutiveErrors, cfg.MaxConsecutiveErrors)
	if st.LastSuccessAt != nil {
		fmt.Fprintf(w, "last success:       %s\n", st.LastSuccessAt.In(cfg.Location()).Format(time.RFC3339))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "last error:         %s\n", st.LastError)
	}
	if cfg.PostDaily && st.RanOn(now, cfg.Location()) {
		fmt.Fprintln(w, "today:              already posted")
	}

	entries := append(append([]state.HistoryEntry{}, st.History...), st.FailureHistory...)
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s %s %s\n", padRight("DATE", 17), padRight("TYPE", 8), padRight("COLLECTION", 12), "ITEM")
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %s %s\n",
			padRight(e.At.In(cfg.Location()).Format("2006-01-02 15:04"), 17),
			padRight(e.Kind, 8),
			padRight(e.Collection, 12),
			runewidth.Truncate(e.Name, 40, "…"))
	}
}

func printPlan(w io.Writer, plan *planner.Plan) {
	fmt.Fprintf(w, "source %.2fs at %gx: %d segment(s) of %.2fs, %.2fs each after speed-up\n",
		plan.SourceDuration, plan.Speed, plan.Count(), plan.SegmentDuration, plan.OutputDuration())
	for _, seg := range plan.Segments {
		fmt.Fprintf(w, "  part %d: %8.2fs - %8.2fs\n", seg.Index+1, seg.Start, seg.End())
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
