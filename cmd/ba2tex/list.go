package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goopsie/ba2FileTools/pkg/archive"
	"github.com/goopsie/ba2FileTools/pkg/dds"
)

var listCmd = &cobra.Command{
	Use:   "list ARCHIVE",
	Short: "List the textures in an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := archive.Open(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tFORMAT\tSIZE\tMIPS\tARCHIVED\tEXPANDED")
	for _, e := range a.Textures {
		archived, expanded := "-", "-"
		if n, err := e.ArchivedSize(); err == nil {
			archived = fmt.Sprint(n)
		}
		if n, err := e.ExpandedSize(); err == nil {
			expanded = fmt.Sprint(n)
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%s\t%s\n",
			e.Path(), dds.FormatName(uint32(e.Format)), e.Width, e.Height, e.NumMips, archived, expanded)
	}
	return w.Flush()
}
