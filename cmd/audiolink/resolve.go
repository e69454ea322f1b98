package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audiolink/internal/core"
	"audiolink/pkg/streamlink"
	"audiolink/pkg/text"
)

var resolveQuality string

var resolveCmd = &cobra.Command{
	Use:   "resolve <url or share text>",
	Short: "Resolve a song link and print the result as JSON",
	Long: `Resolve a song link and print the result as JSON.

The argument may be the share text copied from an app; the first link in it is
used and tracking parameters are stripped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveQuality, "quality", "", "print only the variants of this quality label")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rawURL := text.FirstLink(strings.Join(args, " "))

	svc, err := core.NewService(ctx, config, logger.Named("service"), nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(ctx); closeErr != nil {
			logger.Debug("Failed to close service", zap.Error(closeErr))
		}
	}()

	song, err := svc.Resolve(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("%s: %w", core.ErrorKind(err), err)
	}

	var out any = song
	if resolveQuality != "" {
		variants := song.Variants(resolveQuality)
		if variants == nil {
			return fmt.Errorf("no quality %q, available: %s", resolveQuality, strings.Join(song.Qualities(), ", "))
		}
		out = variants
	}

	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// songSummary reports what a credential check resolved.
func songSummary(song *streamlink.Song) string {
	return fmt.Sprintf("%s [%s]", song.Title, strings.Join(song.Qualities(), ", "))
}
