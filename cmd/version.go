package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/casefolio/casefolio/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	switch versionFormat {
	case "json":
		return writeDocument(version.GetBuildInfo(), "json")
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}

	if versionShort {
		fmt.Println(version.GetShortVersion())
		return nil
	}

	info := version.GetBuildInfo()
	fmt.Printf("casefolio %s\n", version.GetShortVersion())
	if !info.BuildTime.IsZero() {
		fmt.Printf("  built:    %s\n", info.BuildTime.Format(time.RFC3339))
	}
	fmt.Printf("  go:       %s\n", info.GoVersion)
	fmt.Printf("  platform: %s\n", info.Platform)
	return nil
}
