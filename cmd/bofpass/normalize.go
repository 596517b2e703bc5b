package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bofpass/internal/ir"
	"bofpass/internal/mangle"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <name>...",
	Short: "Show how the rename pass reads a callee name",
	Long: `Normalize prints the classification of each name without touching any library:
qualified names are left alone, memory intrinsics map to msvcrt, other
intrinsics are unsupported and "\x01_Name@N" decorations are stripped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := make([]mangle.Result, len(args))
		for i, arg := range args {
			name, err := unquoteArg(arg)
			if err != nil {
				return err
			}
			results[i] = mangle.Normalize(name)
		}
		renderNormalize(cmd.OutOrStdout(), results)
		return nil
	},
}

func renderNormalize(out io.Writer, results []mangle.Result) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Kind", "Lookup Key", "Resolvable"})
	table.SetAutoWrapText(false)
	for _, r := range results {
		resolvable := "no"
		if r.Resolvable() {
			resolvable = "yes"
		}
		table.Append([]string{ir.FormatName(r.Raw), r.Kind.String(), ir.FormatName(r.Name), resolvable})
	}
	table.Render()
}
