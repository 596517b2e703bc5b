package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bofpass/internal/ir"
	"bofpass/internal/mangle"
	"bofpass/internal/symindex"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <symbol>...",
	Short: "Show which library defines a symbol and what it would be renamed to",
	Long: `Lookup normalizes each name the way the rename pass does, then searches the
configured libraries. Names may be Go-quoted to pass control bytes, e.g.
"\x01_Sleep@4".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLookup,
}

type lookupRow struct {
	Name   string
	Kind   mangle.Kind
	Key    string
	Owners []string
	Member string
	Result string
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	names := make([]string, len(args))
	for i, arg := range args {
		if names[i], err = unquoteArg(arg); err != nil {
			return err
		}
	}
	idx, err := openIndex(cmd, cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	warnFailures(cmd, cfg, idx.Failures())

	rows := make([]lookupRow, len(names))
	for i, name := range names {
		rows[i] = resolveName(idx, name)
	}
	renderLookup(cmd.OutOrStdout(), rows)
	return nil
}

// unquoteArg accepts plain names and Go-quoted ones.
func unquoteArg(arg string) (string, error) {
	if !strings.HasPrefix(arg, `"`) {
		return arg, nil
	}
	name, err := strconv.Unquote(arg)
	if err != nil {
		return "", fmt.Errorf("bad quoted name %s: %w", arg, err)
	}
	return name, nil
}

// resolveName mirrors the decision the rewriter takes for a call to raw.
func resolveName(idx *symindex.Index, raw string) lookupRow {
	res := mangle.Normalize(raw)
	row := lookupRow{Name: raw, Kind: res.Kind, Key: res.Name}
	switch {
	case res.Kind == mangle.BuiltinMapped:
		row.Key = res.Symbol
		row.Owners = []string{res.Provider}
		row.Result = res.Name
	case res.Resolvable():
		row.Owners = idx.Owners(res.Name)
		if len(row.Owners) == 0 {
			break
		}
		owner := row.Owners[0]
		row.Result = mangle.Qualify(owner, res.Name)
		if arc, ok := idx.Archive(owner); ok {
			if m, found, err := arc.Lookup(res.Name); err != nil {
				row.Member = "unreadable: " + err.Error()
			} else if found {
				row.Member = m.Name
			}
		}
	}
	return row
}

func renderLookup(out io.Writer, rows []lookupRow) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Kind", "Symbol", "Libraries", "Member", "Renamed To"})
	table.SetAutoWrapText(false)
	for _, r := range rows {
		result := r.Result
		if result == "" {
			result = "(unchanged)"
		}
		table.Append([]string{
			ir.FormatName(r.Name),
			r.Kind.String(),
			ir.FormatName(r.Key),
			dashIfEmpty(strings.Join(r.Owners, ", ")),
			dashIfEmpty(r.Member),
			result,
		})
	}
	table.Render()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
