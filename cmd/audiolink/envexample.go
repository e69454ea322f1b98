package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{title: "CORS Relay", flags: []string{"relay-origin", "http-timeout-secs", "http-max-body-mb"}},
	{title: "SoundCloud", flags: []string{
		"soundcloud-enabled", "soundcloud-api-base", "soundcloud-landing-url", "transcoding-concurrency",
	}},
	{title: "YouTube (Invidious)", flags: []string{"youtube-enabled", "invidious-instance", "invidious-via-relay"}},
	{title: "Credential Store", flags: []string{"store-driver", "store-path", "redis-addr", "redis-password", "redis-db"}},
	{title: "HTTP Server", flags: []string{
		"server-host", "server-port", "rate-limit-per-minute", "trust-proxy", "resolve-timeout-secs",
	}},
	{title: "Logging", flags: []string{"log-level", "log-format"}},
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Fprintln(cmd.OutOrStdout(), "Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# AudioLink Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: " + envPrefix + "_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}

	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")

	for _, name := range section.flags {
		f := cmd.Root().PersistentFlags().Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(content, "# %s\n", f.Usage)
		fmt.Fprintf(content, "%s=%s\n", flagToEnvVar(name), f.DefValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
