// Package cli holds the flux command tree and its configuration.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/njchilds90/goflux"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	Root.AddCommand(evalCmd)
	Root.AddCommand(checkCmd)
	Root.AddCommand(serveCmd)

	options = []option{
		{
			name: "config",
			usage: `
              config is the path of a TOML configuration file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level is one of panic, fatal, error, warn, info, debug
              or trace.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "workers",
			usage: `
              workers bounds the number of grid rows summed concurrently.
              0 means one per CPU.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "derivative-step",
			usage: `
              derivative-step is the finite-difference step for the
              surface derivatives. 0 means the grid step.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "dx",
			usage: `
              dx is the grid step in both u and v.`,
			defaultVal: goflux.DefaultStep,
			flagsets:   []*pflag.FlagSet{evalCmd.Flags()},
		},
		{
			name: "field",
			usage: `
              field is the comma separated components of F(x, y, z).`,
			shorthand:  "F",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{evalCmd.Flags()},
		},
		{
			name: "surface",
			usage: `
              surface is the comma separated components of r(u, v).`,
			shorthand:  "r",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{evalCmd.Flags()},
		},
		{
			name: "u",
			usage: `
              u is the lower and upper bound of u. Both must be constant.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{evalCmd.Flags()},
		},
		{
			name: "v",
			usage: `
              v is the lower and upper bound of v. Bounds may use u.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{evalCmd.Flags()},
		},
		{
			name: "tolerance",
			usage: `
              tolerance is the relative error allowed for problems that do
              not set their own.`,
			defaultVal: 0.01,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags()},
		},
		{
			name: "addr",
			usage: `
              addr is the address the HTTP server listens on.`,
			defaultVal: ":8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "rate",
			usage: `
              rate is the sustained number of requests per second allowed
              from one client.`,
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "burst",
			usage: `
              burst is the number of requests a client may make at once.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "timeout",
			usage: `
              timeout bounds the time spent on one flux request.`,
			defaultVal: 30 * time.Second,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("FLUX")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case time.Duration:
				set.DurationP(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "flux",
	Short: "Estimate the flux of a vector field through a parametric surface.",
	Long: `flux estimates surface integrals of vector fields with finite-difference
normals and a midpoint double sum.

Configuration can be changed with a TOML file (--config), command-line
flags, or environment variables named FLUX_<option> with dashes replaced by
underscores, e.g. FLUX_DERIVATIVE_STEP. A .env file in the working
directory is loaded first.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogger(cmd)
	},
}

// setConfig loads .env and the configuration file, if there is one.
func setConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("flux: reading .env: %w", err)
	}
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("flux: problem reading configuration file: %w", err)
		}
	}
	return nil
}

func setLogger(cmd *cobra.Command) error {
	lvl, err := logrus.ParseLevel(Cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("flux: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// evaluator builds an Evaluator from the current configuration.
func evaluator() *goflux.Evaluator {
	return &goflux.Evaluator{
		Log:            logrus.StandardLogger(),
		Workers:        Cfg.GetInt("workers"),
		DerivativeStep: Cfg.GetFloat64("derivative-step"),
	}
}

// listOption reads a list that may come from a flag, a TOML array or a
// comma separated environment variable.
func listOption(name string) ([]string, error) {
	raw := Cfg.Get(name)
	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	list, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("flux: option %s: %w", name, err)
	}
	return list, nil
}
