package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shirerpeton/diarEval/internal/config"
)

type app struct {
	v          *viper.Viper
	cfg        *config.Config
	log        *logrus.Logger
	configPath string
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: newLogger()}

	root := &cobra.Command{
		Use:           "diareval",
		Short:         "Compare automated diarization output against human annotation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.configPath)
			if err != nil {
				return err
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.log.SetLevel(level)
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Int64("frame-length", 10, "Frame length in milliseconds")
	flags.Float64("window", 300, "Comparison window length in seconds")
	flags.Int("workers", 4, "Clips compared concurrently")
	flags.Bool("skip-overlap", true, "Exclude frames annotated as overlapping speech from all counts")
	flags.Bool("child-subcategories", false, "Split child tiers by utterance type")
	bind(a.v, flags.Lookup("log-level"), "log_level")
	bind(a.v, flags.Lookup("frame-length"), "frame_length_ms")
	bind(a.v, flags.Lookup("window"), "window_length_s")
	bind(a.v, flags.Lookup("workers"), "workers")
	bind(a.v, flags.Lookup("skip-overlap"), "skip_overlap")
	bind(a.v, flags.Lookup("child-subcategories"), "child_subcategories")

	root.AddCommand(
		a.evaluateCmd(),
		a.framesCmd(),
		a.tiersCmd(),
		a.condenseCmd(),
		a.historyCmd(),
		a.configCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
