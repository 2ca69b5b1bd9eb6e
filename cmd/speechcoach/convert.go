package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skypro1111/speechcoach/internal/encoder"
)

// newConvertCommand runs extraction and encoding on a saved container
func newConvertCommand(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert <video-file>",
		Short: "Extract the audio track of a recording and compress it to MP3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			logger, closeLog := initLogger(cfg.Logging)
			defer closeLog()

			input := args[0]
			if output == "" {
				output = strings.TrimSuffix(input, filepath.Ext(input)) + ".mp3"
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return err
			}

			pcm, err := newExtractor(cfg.Audio, logger).Extract(cmd.Context(), data)
			if err != nil {
				return err
			}
			mp3, stats, err := encoder.New(nil, cfg.Audio.BitrateKbps, logger).Encode(cmd.Context(), pcm)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, mp3, 0644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d blocks, %d bytes in %s\n", output, stats.Blocks, stats.Bytes, stats.Elapsed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to the input name with .mp3)")
	return cmd
}
