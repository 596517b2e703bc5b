package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bofpass/internal/archive"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <library>",
	Short: "List the symbol table of one static library",
	Long:  `Symbols loads <lib-path>/lib<library>.a and lists every symbol with the member that defines it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSymbols,
}

func init() {
	symbolsCmd.Flags().String("filter", "", "only list symbols containing this substring")
	symbolsCmd.Flags().Bool("names", false, "print bare symbol names, one per line")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	filter, err := cmd.Flags().GetString("filter")
	if err != nil {
		return fmt.Errorf("failed to get filter flag: %w", err)
	}
	namesOnly, err := cmd.Flags().GetBool("names")
	if err != nil {
		return fmt.Errorf("failed to get names flag: %w", err)
	}

	arc, err := archive.Load(cfg.LibPath, args[0], archive.Options{
		Reporter: newReporter(cmd, cfg),
		NoMmap:   cfg.NoMmap,
	})
	if err != nil {
		return err
	}
	defer arc.Close()

	out := cmd.OutOrStdout()
	if namesOnly {
		for _, name := range arc.Symbols() {
			if strings.Contains(name, filter) {
				fmt.Fprintln(out, name)
			}
		}
		return nil
	}
	return renderSymbols(out, arc, filter)
}

func renderSymbols(out io.Writer, arc *archive.Archive, filter string) error {
	fmt.Fprintf(out, "%s: %s, %s symbol table, %s entries\n",
		arc.Path, humanize.Bytes(uint64(arc.Size())), arc.Kind, humanize.Comma(int64(arc.Len())))
	if !arc.HasSymbolTable() {
		fmt.Fprintln(out, "no symbol table; rebuild the archive with ranlib")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Symbol", "Member", "Offset", "Size"})
	table.SetAutoWrapText(false)
	for _, e := range arc.Entries() {
		if !strings.Contains(e.Name, filter) {
			continue
		}
		var member string
		size := "-"
		if m, err := arc.MemberAt(e.Offset); err != nil {
			member = "unreadable: " + err.Error()
		} else {
			member = m.Name
			size = humanize.Bytes(uint64(m.Size))
		}
		table.Append([]string{e.Name, member, strconv.Itoa(e.Offset), size})
	}
	table.Render()
	return nil
}
