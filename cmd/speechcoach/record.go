package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/report"
)

type recordOptions struct {
	duration  time.Duration
	title     string
	outputDir string
	noUpload  bool
}

// newRecordCommand runs the whole pipeline once from the terminal
func newRecordCommand(root *rootOptions) *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record for a fixed duration, convert, upload and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(root.configPath)
			if err != nil {
				return err
			}
			defer p.closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return record(ctx, p, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "How long to record; an interrupt stops early")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Title of the uploaded session")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Directory to save video.mp4 and audio.mp3 into")
	cmd.Flags().BoolVar(&opts.noUpload, "no-upload", false, "Stop after conversion")
	return cmd
}

func record(ctx context.Context, p *pipeline, opts *recordOptions, out io.Writer) error {
	defer p.session.Close(context.Background())

	// The token check runs while recording; a rejected token cancels capture.
	g, gctx := errgroup.WithContext(ctx)
	if !opts.noUpload {
		g.Go(func() error {
			profile, err := p.remote.Profile(gctx, credentials(p.cfg))
			if err != nil {
				return fmt.Errorf("token check failed: %w", err)
			}
			p.logger.Info("Signed in", slog.String("username", profile.Username))
			return nil
		})
	}
	g.Go(func() error {
		if err := p.session.Start(gctx, false); err != nil {
			return err
		}
		fmt.Fprintf(out, "Recording for %s...\n", opts.duration)

		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-gctx.Done():
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := p.session.Stop(stopCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// An interrupt ends recording but the rest of the pipeline still runs.
	work := context.WithoutCancel(ctx)

	audioArtifact, err := p.session.Convert(work)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Converted audio: %d bytes\n", audioArtifact.Size())

	if opts.outputDir != "" {
		if err := saveArtifacts(p, opts.outputDir); err != nil {
			return err
		}
	}
	if opts.noUpload {
		return nil
	}

	id, err := p.session.Upload(work, opts.title)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Uploaded as record %d\n", id)

	snap := p.session.Snapshot()
	if snap.Report == nil {
		return fmt.Errorf("report for record %d is not available yet, retry with the control API", id)
	}
	printReport(out, snap.Report)
	return nil
}

func saveArtifacts(p *pipeline, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, kind := range []artifact.Kind{artifact.VideoContainer, artifact.CompressedAudio} {
		a, err := p.session.Store().Get(kind)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, a.Filename())
		if err := os.WriteFile(path, a.Bytes(), 0644); err != nil {
			return fmt.Errorf("save %s: %w", kind, err)
		}
		p.logger.Info("Artifact saved", slog.String("kind", kind.String()), slog.String("path", path))
	}
	return nil
}

func printReport(out io.Writer, r *report.Report) {
	fmt.Fprintf(out, "\nTranscription:\n  %s\n", r.Transcription)
	fmt.Fprintf(out, "\nFluency: score %.0f, %d fillers, %d pauses, %.0f wpm\n",
		r.Fluency.FluencyScore, r.Fluency.FillerWordCount, r.Fluency.PauseCount, r.Fluency.SpeakingRate)
	fmt.Fprintf(out, "Grammar: score %.0f, %d errors in %d sentences\n",
		r.Grammar.Score, r.Grammar.TotalErrors, r.Grammar.TotalSentences)
	for _, c := range r.Grammar.Corrections {
		fmt.Fprintf(out, "  %q -> %q\n", c.Original, c.Corrected)
	}
	fmt.Fprintln(out, "Pronunciation:")
	for _, name := range []string{"accuracy", "fluency", "completeness", "prosody", "overall"} {
		m := r.Pronunciation.Metrics()[name]
		if m == nil {
			continue
		}
		fmt.Fprintf(out, "  %-12s %5.1f  %s\n", name, m.Score, m.Comment)
	}
}
