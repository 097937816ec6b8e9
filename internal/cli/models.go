package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Backend and model management",
}

type modelInfo struct {
	Provider llm.ProviderID
	Models   []string
}

var knownModels = []modelInfo{
	{
		Provider: llm.ProviderAnthropic,
		Models: []string{
			"claude-sonnet-4-5",
			"claude-opus-4-1",
			"claude-haiku-4-5",
		},
	},
	{
		Provider: llm.ProviderOpenAI,
		Models: []string{
			"gpt-5",
			"gpt-5-mini",
			"gpt-4.1",
			"gpt-4o",
			"o3-mini",
		},
	},
	{
		Provider: llm.ProviderGemini,
		Models: []string{
			"gemini-2.5-pro",
			"gemini-2.5-flash",
		},
	},
	{
		Provider: llm.ProviderOllama,
		Models: []string{
			"qwen2.5-coder",
			"deepseek-coder-v2",
			"llama3.1",
			"llama3.3",
		},
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known providers, models and on-device aliases",
	Run: func(cmd *cobra.Command, args []string) {
		writeModelList(cmd.OutOrStdout())
	},
}

func writeModelList(w io.Writer) {
	for _, info := range knownModels {
		kind := llm.BackendCloud
		if info.Provider == llm.ProviderOllama {
			kind = llm.BackendOnDevice
		}
		fmt.Fprintf(w, "%s (%s):\n", info.Provider, kind)
		for _, m := range info.Models {
			fmt.Fprintf(w, "  - %s\n", m)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "on-device aliases:")
	for _, name := range llm.OnDeviceFamilies {
		fmt.Fprintf(w, "  %-10s -> %s\n", name, llm.OnDevice(name).Model)
	}
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Ping the configured senior and junior backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		senior, junior, err := cfg.Backends()
		if err != nil {
			return err
		}
		reg, err := providers.BuildRegistry(cfg, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, c := range []struct {
			agent   string
			backend llm.Backend
		}{{"senior", senior}, {"junior", junior}} {
			fmt.Fprintf(out, "Checking %s %s... ", c.agent, c.backend)
			if err := ping(cmd.Context(), reg, c.backend); err != nil {
				fmt.Fprintf(out, "FAIL\n  %v\n", err)
				failed++
				if llm.IsAuth(err) {
					exitCode = ExitAuthError
				} else if exitCode != ExitAuthError {
					exitCode = ExitRuntimeError
				}
				continue
			}
			fmt.Fprintln(out, "OK")
		}
		if failed == 0 {
			fmt.Fprintln(out, "All backends are configured and responding.")
		}
		return nil
	},
}

// ping makes one small completion through the registry.
func ping(ctx context.Context, reg *llm.Registry, b llm.Backend) error {
	p, err := reg.Resolve(b)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := reg.Invoke(ctx, p, llm.Request{
		Model: b.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "Respond with exactly: ok"},
			{Role: llm.RoleUser, Content: "ping"},
		},
		Sampling: llm.Sampling{MaxTokens: 10},
		Metadata: map[string]any{"purpose": "doctor"},
	}, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Content) == "" && resp.FinishReason == "" {
		return fmt.Errorf("%s returned an empty reply", b)
	}
	return nil
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVar(&flagSenior, "senior", "", "Senior backend to check as provider:model")
	modelsDoctorCmd.Flags().StringVar(&flagJunior, "junior", "", "Junior backend to check as provider:model")
}
