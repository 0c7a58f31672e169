package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goopsie/ba2FileTools/pkg/archive"
	"github.com/goopsie/ba2FileTools/pkg/preview"
)

var argPreviewOut string

var previewCmd = &cobra.Command{
	Use:   "preview ARCHIVE PATH",
	Short: "Render the top mip level of a texture to PNG",
	Args:  cobra.ExactArgs(2),
	RunE:  runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVarP(&argPreviewOut, "out", "o", "", "PNG file to write (default stdout)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	a, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	e, ok := a.Find(args[1])
	if !ok {
		return fmt.Errorf("%s: not found in %s", args[1], args[0])
	}

	src, err := a.OpenSource()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := e.ExtractBytes(context.Background(), src, true)
	if err != nil {
		return err
	}
	img, err := preview.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	if argPreviewOut == "" {
		if stdoutIsTerminal() {
			return errors.New("refusing to write PNG to a terminal; use --out")
		}
		return preview.WritePNG(cmd.OutOrStdout(), img)
	}

	f, err := os.Create(argPreviewOut)
	if err != nil {
		return err
	}
	if err := preview.WritePNG(f, img); err != nil {
		f.Close()
		return err
	}
	log.Info().Str("path", e.Path()).Str("out", argPreviewOut).Msg("preview written")
	return f.Close()
}

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
