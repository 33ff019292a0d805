package main

import (
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shirerpeton/diarEval/internal/common"
	"github.com/shirerpeton/diarEval/internal/condenser"
	"github.com/shirerpeton/diarEval/internal/frames"
	"github.com/shirerpeton/diarEval/internal/metadata"
	"github.com/shirerpeton/diarEval/internal/metrics"
	"github.com/shirerpeton/diarEval/internal/parser"
	"github.com/shirerpeton/diarEval/internal/pipeline"
	"github.com/shirerpeton/diarEval/internal/remap"
	"github.com/shirerpeton/diarEval/internal/report"
	"github.com/shirerpeton/diarEval/internal/store"
)

func bind(v *viper.Viper, flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func (a *app) clips(args []string) ([]common.Clip, error) {
	table, err := metadata.Load(a.cfg.Paths.Metadata)
	if err != nil {
		return nil, err
	}
	numbers := table.Numbers()
	if len(args) > 0 {
		numbers = numbers[:0]
		for _, arg := range args {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("clip number %q: %w", arg, err)
			}
			numbers = append(numbers, n)
		}
	}
	dirs := metadata.Dirs{
		Chats:     a.cfg.Paths.Chats,
		TextGrids: a.cfg.Paths.TextGrids,
		Audio:     a.cfg.Paths.Audio,
		AudioExt:  a.cfg.Paths.AudioExt,
	}
	clips := make([]common.Clip, 0, len(numbers))
	for _, n := range numbers {
		clip, err := table.Clip(n, dirs, a.cfg.WindowLengthS)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

func (a *app) evaluateCmd() *cobra.Command {
	var (
		jsonPath  string
		plotPath  string
		pairsPath string
		dbPath    string
		matrix    bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate [clip numbers...]",
		Short: "Compare every clip of the metadata table (or the listed ones)",
		RunE: func(cmd *cobra.Command, args []string) error {
			clips, err := a.clips(args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ev := pipeline.NewEvaluator(a.cfg, a.log)
			ev.KeepFrames = pairsPath != ""
			batch, err := ev.Run(ctx, clips)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report.PrintBatch(out, batch)
			if matrix && batch.Matrix != nil {
				fmt.Fprintln(out)
				if err := report.PrintMatrix(out, batch.Matrix); err != nil {
					return err
				}
			}
			if jsonPath != "" {
				if err := report.WriteJSON(jsonPath, batch); err != nil {
					return err
				}
			}
			if plotPath != "" {
				if err := report.PlotIER(plotPath, batch); err != nil {
					a.log.WithError(err).Warn("not plotting")
				}
			}
			if pairsPath != "" {
				if err := writePairs(pairsPath, batch); err != nil {
					return err
				}
			}
			if dbPath == "" {
				dbPath = a.cfg.Paths.Database
			}
			if dbPath != "" {
				return a.save(dbPath, batch)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write the summary as JSON to this path")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write a PNG chart of per-clip error rates")
	cmd.Flags().StringVar(&pairsPath, "pairs", "", "Write aligned reference/hypothesis labels as TSV")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record the run in this SQLite database")
	cmd.Flags().BoolVar(&matrix, "matrix", false, "Print the confusion matrix over all categories")
	return cmd
}

func writePairs(path string, batch *pipeline.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var all []metrics.LabelPair
	for _, res := range batch.Results {
		pairs, err := metrics.Pairs(res.Reference, res.Hypothesis)
		if err != nil {
			return fmt.Errorf("%s: %w", res.Clip.Name, err)
		}
		all = append(all, pairs...)
	}
	if err := report.WritePairs(f, all); err != nil {
		return err
	}
	return f.Close()
}

func (a *app) save(path string, batch *pipeline.BatchResult) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	var cfgYAML strings.Builder
	if err := a.cfg.Write(&cfgYAML); err != nil {
		return err
	}
	run := &store.Run{
		RunID:      batch.RunID,
		Clips:      len(batch.Results),
		Failures:   len(batch.Failures),
		ConfigYAML: cfgYAML.String(),
	}
	run.FalseAlarms, run.Misses, run.Confusions, run.Total = batch.Totals.Tuple()
	run.IER = nullRate(batch.Totals)

	var records []*store.ClipRecord
	for _, res := range batch.Results {
		rec := clipRecord(res.Clip)
		c := res.Counts
		rec.FalseAlarms, rec.Misses, rec.Confusions, rec.Total = c.Tuple()
		rec.Correct, rec.Skipped = c.Correct, c.Skipped
		rec.IER = nullRate(c)
		records = append(records, rec)
	}
	for _, f := range batch.Failures {
		rec := clipRecord(f.Clip)
		rec.Error = f.Err.Error()
		records = append(records, rec)
	}
	if err := st.SaveRun(run, records); err != nil {
		return err
	}
	a.log.WithField("run", run.RunID).Infof("recorded run in %s", path)
	return nil
}

func clipRecord(clip common.Clip) *store.ClipRecord {
	return &store.ClipRecord{
		ClipNumber:     clip.Number,
		ClipName:       clip.Name,
		HypothesisPath: clip.Hypothesis,
		ReferencePath:  clip.Reference,
		StartTimeS:     clip.StartTime,
		WindowLengthS:  clip.WindowLength,
	}
}

func nullRate(c metrics.Counts) sql.NullFloat64 {
	ier, ok := c.IER()
	return sql.NullFloat64{Float64: ier, Valid: ok}
}

func (a *app) framesCmd() *cobra.Command {
	var stream string
	cmd := &cobra.Command{
		Use:   "frames <annotation file>",
		Short: "Print the discretized frames of one annotation file as labelled runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := parser.ParseFile(args[0], parser.Options{ChildSubcategories: a.cfg.ChildSubcategories})
			if err != nil {
				return err
			}
			var (
				mapping      common.Mapping
				defaultClass string
				overlap      common.Set
			)
			switch stream {
			case "reference":
				mapping, defaultClass = a.cfg.Reference.Mapping, a.cfg.Reference.DefaultClass()
				overlap = a.cfg.OverlapSet()
			case "hypothesis":
				mapping, defaultClass = a.cfg.Hypothesis.Mapping, a.cfg.Hypothesis.DefaultClass()
			case "raw":
				// labels as they appear in the file
				mapping, defaultClass = remap.Identity(tiers), a.cfg.SilenceCategory
			default:
				return fmt.Errorf("unknown stream %q", stream)
			}
			tiers, err = remap.Remap(tiers, mapping)
			if err != nil {
				return err
			}
			seq := frames.Discretize(tiers, frames.Options{
				DefaultClass:  defaultClass,
				OverlapSet:    overlap,
				FrameLength:   a.cfg.FrameLengthMs,
				InitialFrames: a.cfg.InitialFrames,
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "start_ms\tend_ms\tlabel")
			start := 0
			for i := 1; i <= len(seq); i++ {
				if i < len(seq) && seq[i] == seq[start] {
					continue
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\n",
					int64(start)*a.cfg.FrameLengthMs, int64(i)*a.cfg.FrameLengthMs, seq[start])
				start = i
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "reference", "Stream the file belongs to: reference, hypothesis or raw (no remapping)")
	return cmd
}

func (a *app) tiersCmd() *cobra.Command {
	var (
		turnsTier   string
		turns       []string
		vocalTier   string
		nonVocal    []string
		durationsOf []string
	)
	cmd := &cobra.Command{
		Use:   "tiers <annotation file>",
		Short: "Summarize the tiers of an annotation file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			tiers, err := parser.ParseFile(path, parser.Options{ChildSubcategories: a.cfg.ChildSubcategories})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "tier\tsegments\tduration_s")
			for _, label := range tiers.Labels() {
				var total int64
				for _, s := range tiers[label] {
					total += s.Duration()
				}
				fmt.Fprintf(tw, "%s\t%d\t%.3f\n", label, len(tiers[label]), float64(total)/1000)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !strings.EqualFold(filepath.Ext(path), ".textgrid") {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			grid, err := parser.ParseTextGrid(f)
			if err != nil {
				return err
			}
			if _, ok := grid.Tier(turnsTier); ok {
				n, err := grid.CountPoints(turnsTier, common.NewSet(turns...))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "conversational turns: %d\n", n)
			}
			if _, ok := grid.Tier(vocalTier); ok {
				n, err := grid.CountIntervals(vocalTier, common.NewSet(nonVocal...))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "child vocalizations: %d\n", n)
			}
			for _, name := range durationsOf {
				d, err := grid.Duration(name)
				if err != nil {
					a.log.WithError(err).Debug("skipping duration")
					continue
				}
				fmt.Fprintf(out, "%s duration: %.3fs\n", name, d)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&turnsTier, "turns-tier", "CT", "Point tier holding conversational turns")
	cmd.Flags().StringSliceVar(&turns, "turns", []string{"CA", "AC", "CO", "OC", "CC2", "C2C"}, "Point marks counted as turns")
	cmd.Flags().StringVar(&vocalTier, "vocal-tier", "Child", "Tier holding child utterances")
	cmd.Flags().StringSliceVar(&nonVocal, "exclude", []string{"F", "V"}, "Child marks not counted as vocalizations")
	cmd.Flags().StringSliceVar(&durationsOf, "durations", []string{"Noise", "TV"}, "Tiers to total the annotated duration of")
	return cmd
}

func (a *app) condenseCmd() *cobra.Command {
	var (
		run    bool
		outDir string
		maxGap float64
	)
	cmd := &cobra.Command{
		Use:   "condense <clip number>",
		Short: "Cut a clip's audio down to the stretches where the streams disagree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clips, err := a.clips(args)
			if err != nil {
				return err
			}
			clip := clips[0]
			ev := pipeline.NewEvaluator(a.cfg, a.log)
			ev.KeepFrames = true
			res, err := ev.CompareClip(clip)
			if err != nil {
				return err
			}
			diffs, err := condenser.Disagreements(res.Reference, res.Hypothesis, a.cfg.FrameLengthMs)
			if err != nil {
				return err
			}
			if maxGap < 0 {
				maxGap = a.cfg.MaxGapS
			}
			window := time.Duration(clip.WindowLength * float64(time.Second))
			intervals := condenser.Condense(diffs, time.Duration(maxGap*float64(time.Second)), window)
			condensed, err := condenser.Duration(intervals)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report.PrintClip(out, res)
			output := condenser.OutputPath(outDir, clip)
			percent := condensed.Seconds() / window.Seconds() * 100
			color.New(color.FgYellow).Fprint(out, "condensed duration: ")
			color.New(color.FgMagenta).Fprintf(out, "%v (%.1f%%) in %d stretches\n", condensed, percent, len(intervals))
			if !run {
				return nil
			}
			if err := condenser.ProcessFile(cmd.Context(), clip, intervals, output); err != nil {
				return err
			}
			fmt.Fprint(out, "File ")
			color.New(color.FgMagenta).Fprint(out, output)
			fmt.Fprintln(out, " - done")
			return nil
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "Run ffmpeg; without it only the stats are printed")
	cmd.Flags().StringVar(&outDir, "out", "./output/", "Directory for condensed audio")
	cmd.Flags().Float64Var(&maxGap, "gap", -1, "Maximum gap in seconds merged between disagreements (default from config)")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "history [run id]",
		Short: "List recorded runs, or the clips of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Paths.Database
			}
			if dbPath == "" {
				return fmt.Errorf("no database configured")
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if len(args) == 0 {
				runs, err := st.Runs()
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "run\tcreated\tclips\tfailed\tier")
				for _, r := range runs {
					created := time.Unix(0, r.CreatedAt).Format(time.DateTime)
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.RunID, created, r.Clips, r.Failures, formatRate(r.IER))
				}
				return tw.Flush()
			}
			records, err := st.ListByRun(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "clip\tfalse_alarms\tmisses\tconfusions\ttotal\tier\terror")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n", r.ClipName, r.FalseAlarms, r.Misses,
					r.Confusions, r.Total, formatRate(r.IER), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default from config)")
	return cmd
}

func formatRate(r sql.NullFloat64) string {
	if !r.Valid {
		return "-"
	}
	return strconv.FormatFloat(r.Float64, 'f', 4, 64)
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.Write(cmd.OutOrStdout())
		},
	}
}
