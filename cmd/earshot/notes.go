package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"earshot/internal/bootstrap"
)

func newNotesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "notes [transcript-file]",
		Short: "Organize a transcript into a markdown note",
		Long:  "Reads a transcript from the given file, or stdin when the file is omitted or \"-\", cleans it with the configured rules and prints a structured note.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTranscript(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			services, err := bootstrap.Build(newTerminalSink(cmd.ErrOrStderr()), nil)
			if err != nil {
				return err
			}

			result, err := services.Notes.Take(cmd.Context(), text, services.Config.Gemini.APIKey)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(out, result.Markdown)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func readTranscript(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}
