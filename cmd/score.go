package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ssimulacra2/internal/imageio"
	"github.com/cwbudde/ssimulacra2/internal/metric"
)

// scoreOptions holds the flags of the score command
type scoreOptions struct {
	background    float32
	hasBackground bool
	heatmapPath   string
	json          bool
	features      bool
}

var (
	scoreBackground float32
	scoreHeatmap    string
	scoreJSON       bool
	scoreFeatures   bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <reference> <distorted>",
	Short: "Score one distorted image against its reference",
	Long: `Decodes both images (PNG, JPEG, GIF, BMP, TIFF or WebP) and prints the
SSIMULACRA2 score. When the reference has alpha both images are composited
over a dark and a light background and the worse score is reported, unless
--background fixes the matte intensity. A distorted image with alpha against
an opaque reference is composited over mid gray (0.5) by default.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScore(args[0], args[1], scoreOptions{
			background:    scoreBackground,
			hasBackground: cmd.Flags().Changed("background"),
			heatmapPath:   scoreHeatmap,
			json:          scoreJSON,
			features:      scoreFeatures,
		}, os.Stdout)
	},
}

func init() {
	scoreCmd.Flags().Float32Var(&scoreBackground, "background", 0, "Matte intensity in [0,1] for images with alpha")
	scoreCmd.Flags().StringVar(&scoreHeatmap, "heatmap", "", "Write a grayscale PNG of the luma error to this path")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print the result as JSON")
	scoreCmd.Flags().BoolVar(&scoreFeatures, "features", false, "Include the 108 feature values")
	rootCmd.AddCommand(scoreCmd)
}

// scoreOutput is the --json form of a comparison
type scoreOutput struct {
	Reference  string    `json:"reference"`
	Distorted  string    `json:"distorted"`
	Format     [2]string `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Score      float64   `json:"score"`
	Scales     int       `json:"scales"`
	Composited bool      `json:"composited"`
	Background float32   `json:"background,omitempty"`
	Features   []float64 `json:"features,omitempty"`
	Elapsed    float64   `json:"elapsed"`
}

func runScore(refPath, distPath string, o scoreOptions, out io.Writer) error {
	var opts []metric.Option
	if o.hasBackground {
		if err := metric.ValidateBackground(o.background); err != nil {
			return err
		}
		opts = append(opts, metric.WithBackground(o.background))
	}

	ref, refFormat, err := imageio.DecodeFile(refPath)
	if err != nil {
		return err
	}
	dist, distFormat, err := imageio.DecodeFile(distPath)
	if err != nil {
		return err
	}
	slog.Debug("Decoded images", "ref_format", refFormat, "dist_format", distFormat, "width", ref.Width, "height", ref.Height)

	start := time.Now()
	res, err := metric.Compute(ref, dist, opts...)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	slog.Info("Comparison complete",
		"score", res.Score,
		"scales", res.Scales,
		"composited", res.Composited,
		"elapsed", elapsed,
	)

	if o.heatmapPath != "" {
		if err := writeHeatmap(o.heatmapPath, ref, dist, res.Background); err != nil {
			return err
		}
	}

	if o.json {
		result := scoreOutput{
			Reference:  refPath,
			Distorted:  distPath,
			Format:     [2]string{refFormat.String(), distFormat.String()},
			Width:      ref.Width,
			Height:     ref.Height,
			Score:      res.Score,
			Scales:     res.Scales,
			Composited: res.Composited,
			Background: res.Background,
			Elapsed:    elapsed.Seconds(),
		}
		if o.features {
			result.Features = res.Features[:]
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%.8f\n", res.Score)
	if o.features {
		for i, v := range res.Features {
			fmt.Fprintf(out, "%3d %.8f\n", i, v)
		}
	}
	return nil
}

func writeHeatmap(path string, ref, dist *metric.PixelBuffer, background float32) error {
	heat, err := metric.Heatmap(ref, dist, background)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heatmap: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, heat); err != nil {
		return fmt.Errorf("failed to encode heatmap: %w", err)
	}
	slog.Info("Wrote heatmap", "path", path)
	return nil
}
