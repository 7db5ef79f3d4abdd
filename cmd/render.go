package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/template"
	"github.com/casefolio/casefolio/internal/templates"
)

var renderFormat string

var renderCmd = &cobra.Command{
	Use:   "render <template-file> [variables-file]",
	Short: "Render a template with variables",
	Long: `Render a template document, substituting variables and resolving
loops and conditionals. Variables come from an optional YAML or JSON file.

Examples:
  casefolio render templates/product-launch.yaml vars.yml
  casefolio render templates/product-launch.yaml --format json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "yaml", "Output format (yaml, json)")
}

func runRender(cmd *cobra.Command, args []string) error {
	tmpl, err := templates.ParseFile(args[0])
	if err != nil {
		return err
	}

	vars := document.Map{}
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading variables file: %w", err)
		}
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return fmt.Errorf("parsing variables file: %w", err)
		}
	}

	processed, err := template.NewProcessor().Process(tmpl, vars)
	if err != nil {
		return err
	}

	return writeDocument(processed, renderFormat)
}

func writeDocument(doc any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(doc)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}
