package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ssimulacra2/internal/imageio"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff <file>...",
	Short: "Identify image files from their header bytes",
	Long: `Prints the size, leading bytes and detected format of each file. This
is the analysis attached to decode errors, useful when a file is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			fmt.Printf("%s: %s\n", path, imageio.Analyze(data))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sniffCmd)
}
