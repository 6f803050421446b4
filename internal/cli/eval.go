package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njchilds90/goflux/internal/problem"
)

// evalCmd estimates one flux integral given on the command line.
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Estimate one flux integral",
	Long: `eval estimates the flux of --field through --surface over --u × --v.

  flux eval --field 2*x,5*y,0 --surface u,v,4*u+3*v --u 0,1 --v -8,8 --dx 0.005`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, err := specFromConfig()
		if err != nil {
			return err
		}
		p, err := spec.Problem()
		if err != nil {
			return err
		}
		est, err := evaluator().Estimate(cmd.Context(), p)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "flux\t%.12g\n", est.Flux)
		fmt.Fprintf(w, "rows\t%d\n", est.Rows)
		fmt.Fprintf(w, "samples\t%d\n", est.Samples)
		fmt.Fprintf(w, "skipped\t%d\n", est.Skipped)
		return w.Flush()
	},
}

// specFromConfig gathers the eval options into a problem Spec.
func specFromConfig() (problem.Spec, error) {
	s := problem.Spec{Name: "eval", Dx: Cfg.GetFloat64("dx")}
	var err error
	if s.Field, err = required("field"); err != nil {
		return s, err
	}
	if s.Surface, err = required("surface"); err != nil {
		return s, err
	}
	for _, name := range []string{"u", "v"} {
		bounds, err := required(name)
		if err != nil {
			return s, err
		}
		raw := make([]interface{}, len(bounds))
		for i, b := range bounds {
			raw[i] = b
		}
		if name == "u" {
			s.U = raw
		} else {
			s.V = raw
		}
	}
	return s, nil
}

func required(name string) ([]string, error) {
	list, err := listOption(name)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("flux: --%s is required", name)
	}
	return list, nil
}
