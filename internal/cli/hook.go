package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	hookMarkerStart = "# >>> tandem pre-commit hook >>>"
	hookMarkerEnd   = "# <<< tandem pre-commit hook <<<"
)

var (
	hookFailOn    string
	hookFormat    string
	hookMaxRounds int
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tandem as a git pre-commit hook reviewing staged changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			return runtimeErr(err)
		}

		section := generateHookScript(hookFailOn, hookFormat, hookMaxRounds)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			return runtimeErr(fmt.Errorf("reading hook file: %w", err))
		}

		var content string
		if len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			return runtimeErr(fmt.Errorf("creating hooks directory: %w", err))
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return runtimeErr(fmt.Errorf("writing hook file: %w", err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed tandem pre-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the tandem pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			return runtimeErr(err)
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No pre-commit hook found.")
				return nil
			}
			return runtimeErr(fmt.Errorf("reading hook file: %w", err))
		}

		content := removeHookSection(string(existing))

		// A hook left with only its shebang is removed entirely.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				return runtimeErr(fmt.Errorf("removing hook file: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed tandem pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return runtimeErr(fmt.Errorf("writing hook file: %w", err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed tandem section from %s\n", hookPath)
		return nil
	},
}

func getHookPath() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--git-path", "hooks").Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository (git rev-parse failed)")
	}
	return filepath.Join(strings.TrimSpace(string(out)), "pre-commit"), nil
}

func generateHookScript(failOn, format string, maxRounds int) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	fmt.Fprintf(&b, "tandem review diff --staged --stream=false --fail-on %s --format %s --max-rounds %d\n", failOn, format, maxRounds)
	b.WriteString("TANDEM_EXIT=$?\n")
	b.WriteString("if [ $TANDEM_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"tandem: findings above threshold, commit blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $TANDEM_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"tandem: warning, review did not complete (exit $TANDEM_EXIT), allowing commit\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFailOn, "fail-on", "high", "Fail on severity threshold (none, low, medium, high)")
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "text", "Output format for the hook's review")
	hookInstallCmd.Flags().IntVar(&hookMaxRounds, "max-rounds", 2, "Maximum rounds for the hook's review")
}
