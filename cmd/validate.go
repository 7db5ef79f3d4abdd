package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casefolio/casefolio/internal/template"
	"github.com/casefolio/casefolio/internal/templates"
)

var validateCmd = &cobra.Command{
	Use:   "validate <template-file>",
	Short: "Validate a template file",
	Long: `Check a template document for structural problems: a missing title,
unparseable content, or variables repeated suspiciously often.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	tmpl, err := templates.ParseFile(args[0])
	if err != nil {
		return err
	}

	result := template.Validate(tmpl)
	if result.Valid {
		fmt.Printf("%s: OK\n", args[0])
		return nil
	}

	for _, msg := range result.Errors {
		fmt.Printf("%s: %s\n", args[0], msg)
	}
	return fmt.Errorf("template is invalid")
}
