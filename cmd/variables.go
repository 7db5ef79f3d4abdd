package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casefolio/casefolio/internal/template"
	"github.com/casefolio/casefolio/internal/templates"
)

var variablesFormat string

var variablesCmd = &cobra.Command{
	Use:   "variables <template-file>",
	Short: "List the variables a template uses",
	Args:  cobra.ExactArgs(1),
	RunE:  runVariables,
}

func init() {
	rootCmd.AddCommand(variablesCmd)
	variablesCmd.Flags().StringVarP(&variablesFormat, "format", "f", "text", "Output format (text, json)")
}

func runVariables(cmd *cobra.Command, args []string) error {
	tmpl, err := templates.ParseFile(args[0])
	if err != nil {
		return err
	}

	defs := template.ExtractVariables(tmpl)

	if variablesFormat == "json" {
		return writeDocument(defs, "json")
	}

	if len(defs) == 0 {
		fmt.Println("no variables")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLABEL")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\n", def.Name, def.Label)
	}
	return w.Flush()
}
