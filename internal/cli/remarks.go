package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/gpuflat/internal/rewrite"
	"github.com/roach88/gpuflat/internal/store"
)

// RemarksOptions holds flags for the remarks command.
type RemarksOptions struct {
	*RootOptions
	RunID string // show the remarks of one run
	Kind  string // optional - filter to one remark kind
}

// RemarksResult is the JSON payload for one run.
type RemarksResult struct {
	Run     store.Run        `json:"run"`
	Remarks []rewrite.Remark `json:"remarks"`
	Counts  map[string]int   `json:"counts"`
}

// NewRemarksCommand creates the remarks command.
func NewRemarksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemarksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remarks <db>",
		Short: "Inspect journaled lowering remarks",
		Long: `Inspect the remark journal written by lower --remarks-db.

Without --run, lists the journaled runs in the order they were written.
With --run, shows the remarks of that run in seq order.

Examples:
  gpuflat remarks remarks.db
  gpuflat remarks remarks.db --run 0190a3c2-...
  gpuflat remarks remarks.db --run 0190a3c2-... --kind missed --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemarks(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one kind (passed|missed|analysis)")

	return cmd
}

func runRemarks(ctx context.Context, opts *RemarksOptions, dbPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening would create a fresh journal, which hides a mistyped path.
	if _, err := os.Stat(dbPath); err != nil {
		return commandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("database not found: %s", dbPath),
		})
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, formatter)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return commandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("run not found: %s", opts.RunID),
		})
	}
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}

	remarks, err := st.ReadRemarks(ctx, opts.RunID)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}
	if opts.Kind != "" {
		remarks = lo.Filter(remarks, func(r rewrite.Remark, _ int) bool { return string(r.Kind) == opts.Kind })
	}

	result := RemarksResult{
		Run:     run,
		Remarks: remarks,
		Counts:  lo.CountValuesBy(remarks, func(r rewrite.Remark) string { return string(r.Kind) }),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputRemarksText(formatter, result)
	return nil
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs journaled.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %-7s  %d applied, %d missed, %d illegal  %s\n",
			r.ID, r.Mode, r.Applied, r.Missed, r.Illegal, r.Source)
	}
	return nil
}

func outputRemarksText(formatter *OutputFormatter, result RemarksResult) {
	w := formatter.Writer
	title := cases.Title(language.English)

	fmt.Fprintf(w, "Run %s (%s, pass %s)\n", result.Run.ID, result.Run.Mode, result.Run.PassVersion)
	fmt.Fprintf(w, "Source: %s\n\n", result.Run.Source)

	if len(result.Remarks) == 0 {
		fmt.Fprintln(w, "No remarks.")
		return
	}
	for _, r := range result.Remarks {
		fmt.Fprintf(w, "[%d] %-8s %s %s\n", r.Seq, title.String(string(r.Kind)), r.Func, r.Loc)
		fmt.Fprintf(w, "    %s\n", r.Message)
		keys := lo.Keys(r.Details)
		slices.Sort(keys)
		for _, k := range keys {
			formatter.VerboseLog("    %s=%s", k, r.Details[k])
		}
	}

	fmt.Fprintln(w)
	for _, kind := range []rewrite.RemarkKind{rewrite.RemarkPassed, rewrite.RemarkMissed, rewrite.RemarkAnalysis} {
		fmt.Fprintf(w, "%s: %d\n", title.String(string(kind)), result.Counts[string(kind)])
	}
}
