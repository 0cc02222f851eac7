package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/triviasearch/internal/database"
	"github.com/saltyorg/triviasearch/internal/search"
	"github.com/saltyorg/triviasearch/internal/snapshot"
)

func newSearchCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Load the snapshot once and print matching questions as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			loader, _, err := newLoader(settings)
			if err != nil {
				return err
			}
			defer loader.Close()

			ready := make(chan struct{})
			binding := search.Bind(loader, func(search.View) { close(ready) })
			defer binding.Release()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			select {
			case <-ready:
			case <-loader.Done():
				// Done also closes on success; the binding is notified right after.
				if loader.State() != snapshot.StateReady {
					return fmt.Errorf("snapshot unavailable: %w", loader.Err())
				}
				select {
				case <-ready:
				case <-ctx.Done():
					return fmt.Errorf("timed out waiting for snapshot: %w", ctx.Err())
				}
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for snapshot: %w", ctx.Err())
			}

			results, err := binding.Results(ctx, query)
			if err != nil {
				return err
			}
			log.Debug().Str("query", query).Int("results", len(results)).Msg("Search complete")

			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "How long to wait for the snapshot to load")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newBuildCmd() *cobra.Command {
	var (
		input        string
		output       string
		unescapeHTML bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a snapshot from a JSON question list",
		Long: `build reads either a JSON array of {question, correct_answer,
incorrect_answers} objects or an Open Trivia DB response and writes a
snapshot database. The BLAKE2b-256 digest of the result is printed so it can
be pinned with --blake2b.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			n, err := database.Build(output, r, database.ImportOptions{UnescapeHTML: unescapeHTML})
			if err != nil {
				return err
			}

			data, err := os.ReadFile(output)
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			digest := snapshot.Digest(data)

			log.Info().
				Str("output", output).
				Int("questions", n).
				Int("bytes", len(data)).
				Str("blake2b", digest).
				Msg("Snapshot ready to publish")

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", digest, output)
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "Question JSON file (- for stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", DefaultSnapshot, "Snapshot file to write")
	cmd.Flags().BoolVar(&unescapeHTML, "unescape-html", false, "Decode HTML entities in questions and answers")

	return cmd
}
