package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njchilds90/goflux/internal/problem"
)

// checkCmd runs a problem set and compares every estimate with its answer.
var checkCmd = &cobra.Command{
	Use:   "check [problems.toml]",
	Short: "Check estimates against closed-form answers",
	Long: `check evaluates every problem in a TOML problem file, or the built-in
textbook set when no file is given, and fails if any estimate misses its
expected value by more than its tolerance.`,
	Args:              cobra.MaximumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := problem.Textbook()
		if len(args) == 1 {
			var err error
			if specs, err = problem.Load(args[0]); err != nil {
				return err
			}
		}
		tol := Cfg.GetFloat64("tolerance")
		for i := range specs {
			if specs[i].Tolerance == 0 {
				specs[i].Tolerance = tol
			}
		}

		outcomes := problem.Check(cmd.Context(), evaluator(), specs)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, o := range outcomes {
			status := "PASS"
			if !o.Pass {
				status = "FAIL"
			}
			if o.Err != nil {
				fmt.Fprintf(w, "%s\t%s\terror: %v\n", status, o.Name, o.Err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\tflux=%.8g\texpected=%.8g\trel=%.3g\n", status, o.Name, o.Flux, o.Expected, o.RelErr)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if n := problem.Failed(outcomes); n > 0 {
			return fmt.Errorf("flux: %d of %d problems failed", n, len(outcomes))
		}
		return nil
	},
}
