package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goopsie/ba2FileTools/pkg/archive"
)

var infoCmd = &cobra.Command{
	Use:   "info ARCHIVE [PATH...]",
	Short: "Show the archive header or details of individual textures",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		h := a.Header
		fmt.Fprintf(out, "Version: %d\n", h.Version)
		fmt.Fprintf(out, "Type: %s\n", h.Type[:])
		fmt.Fprintf(out, "Textures: %d\n", h.FileCount)
		fmt.Fprintf(out, "Compression: %s\n", h.Compression())
		fmt.Fprintf(out, "Name table: %t\n", h.NameTableOffset != 0)
		return nil
	}

	for _, path := range args[1:] {
		e, ok := a.Find(path)
		if !ok {
			return fmt.Errorf("%s: not found in %s", path, args[0])
		}
		fmt.Fprintf(out, "%s\n%s\n", e.Path(), e)
	}
	return nil
}
