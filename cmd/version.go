package main

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ssimulacra2"
	"github.com/cwbudde/ssimulacra2/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ssimulacra2 version %s, %s (%s, %s/%s)\n", ssimulacra2.Version, ssimulacra2.VersionString, runtime.Version(), runtime.GOOS, runtime.GOARCH)

		features := server.CPUFeatures()
		names := make([]string, 0, len(features))
		for name, ok := range features {
			if ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		fmt.Printf("CPU features: %v\n", names)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
