package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/ssimulacra2/internal/batch"
	"github.com/cwbudde/ssimulacra2/internal/metric"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

// batchOptions holds the flags of the batch command
type batchOptions struct {
	refDir        string
	distDir       string
	workers       int
	outPath       string
	resume        bool
	storeDir      string
	background    float32
	hasBackground bool
	features      bool
}

var (
	batchRefDir     string
	batchDistDir    string
	batchWorkers    int
	batchOut        string
	batchResume     bool
	batchStore      string
	batchBackground float32
	batchFeatures   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score every matching pair of two directories",
	Long: `Pairs each image in --dist-dir with the image of the same name (or
the same name without extension) in --ref-dir and scores all pairs
concurrently. Results are streamed as JSON lines to --out and summarized at
the end. With --resume, pairs already scored successfully in --out are
skipped and new results are appended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runBatch(ctx, batchOptions{
			refDir:        batchRefDir,
			distDir:       batchDistDir,
			workers:       batchWorkers,
			outPath:       batchOut,
			resume:        batchResume,
			storeDir:      batchStore,
			background:    batchBackground,
			hasBackground: cmd.Flags().Changed("background"),
			features:      batchFeatures,
		}, os.Stdout)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchRefDir, "ref-dir", "", "Directory of reference images (required)")
	batchCmd.Flags().StringVar(&batchDistDir, "dist-dir", "", "Directory of distorted images (required)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Pairs scored at once (0 = one per CPU)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "JSON lines file receiving one record per pair")
	batchCmd.Flags().BoolVar(&batchResume, "resume", false, "Skip pairs already scored in --out and append")
	batchCmd.Flags().StringVar(&batchStore, "store", "", "Save the batch as a report in this store directory")
	batchCmd.Flags().Float32Var(&batchBackground, "background", 0, "Matte intensity in [0,1] for images with alpha")
	batchCmd.Flags().BoolVar(&batchFeatures, "features", false, "Include the 108 feature values in each record")

	batchCmd.MarkFlagRequired("ref-dir")
	batchCmd.MarkFlagRequired("dist-dir")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(ctx context.Context, o batchOptions, out io.Writer) error {
	if o.resume && o.outPath == "" {
		return fmt.Errorf("--resume requires --out")
	}

	var metricOpts []metric.Option
	if o.hasBackground {
		if err := metric.ValidateBackground(o.background); err != nil {
			return err
		}
		metricOpts = append(metricOpts, metric.WithBackground(o.background))
	}

	pairs, err := batch.Pairs(o.refDir, o.distDir)
	if err != nil {
		return err
	}

	// Earlier successes are kept, earlier failures are retried
	var previous []store.Record
	if o.resume {
		records, err := store.ReadResults(o.outPath)
		if err != nil {
			return fmt.Errorf("failed to read previous results: %w", err)
		}
		done := make(map[string]bool)
		for _, rec := range records {
			if !rec.Failed() {
				previous = append(previous, rec)
				done[rec.Key()] = true
			}
		}

		todo := pairs[:0]
		for _, p := range pairs {
			rec := store.Record{Ref: p.Ref, Dist: p.Dist}
			if !done[rec.Key()] {
				todo = append(todo, p)
			}
		}
		slog.Info("Resuming batch", "done", len(pairs)-len(todo), "remaining", len(todo))
		pairs = todo
	}

	var writer *store.ResultWriter
	if o.outPath != "" {
		writer, err = store.NewResultWriter(o.outPath, o.resume)
		if err != nil {
			return err
		}
		defer writer.Close()
	}

	slog.Info("Starting batch", "pairs", len(pairs), "workers", o.workers)
	start := time.Now()
	completed := 0
	reported := make([]bool, len(pairs))

	results, runErr := batch.Run(ctx, pairs, batch.Options{
		Workers:       o.workers,
		MetricOptions: metricOpts,
		OnResult: func(index int, r batch.Result) {
			completed++
			reported[index] = true
			if writer != nil {
				if err := writer.Write(r.Record(o.features)); err != nil {
					slog.Error("Failed to write result", "ref", r.Ref, "dist", r.Dist, "error", err)
				}
			}
			if r.Err != nil {
				slog.Warn("Pair failed", "ref", r.Ref, "dist", r.Dist, "error", r.Err)
				return
			}
			slog.Debug("Pair scored", "dist", r.Dist, "score", r.Score.Score, "done", completed, "total", len(pairs))
		},
	})
	elapsed := time.Since(start)

	// Cancelled pairs were never written, so a resumed run picks them up
	records := previous
	for i := range results {
		if !reported[i] {
			continue
		}
		records = append(records, results[i].Record(o.features))
	}
	summary := batch.SummarizeRecords(records)

	fmt.Fprintf(out, "Scored %d pair(s), %d failed, in %s\n", summary.Count, summary.Failed, elapsed.Round(time.Millisecond))
	if summary.Count > 0 {
		fmt.Fprintf(out, "  mean %.4f  stddev %.4f\n", summary.Mean, summary.StdDev)
		fmt.Fprintf(out, "  min %.4f  p10 %.4f  median %.4f  max %.4f\n", summary.Min, summary.P10, summary.Median, summary.Max)
	}

	if o.storeDir != "" && len(records) > 0 {
		if err := saveBatchReport(o.storeDir, records, summary, out); err != nil {
			return err
		}
	}

	return runErr
}

func saveBatchReport(dir string, records []store.Record, summary batch.Summary, out io.Writer) error {
	reports, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer reports.Close()

	report := store.NewReport(uuid.New().String(), store.SourceBatch, records, &summary)
	if err := reports.SaveReport(report); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved report %s\n", report.ID)
	return nil
}
