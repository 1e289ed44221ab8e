// planloop analyzes a GitHub issue and streams an execution plan built from
// bounded, online repository research. No local checkout is required.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/martinemde/issueplanner/docsource"
	"github.com/martinemde/issueplanner/ghsource"
	"github.com/martinemde/issueplanner/modelwire"
	"github.com/martinemde/issueplanner/planloop"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliOptions struct {
	repo      string
	issue     int
	provider  string
	model     string
	maxTurns  int
	outputDir string
}

func rootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "planloop",
		Short: "Generate an execution plan for a GitHub issue",
		Long: "planloop drives a language-model agent through bounded online research\n" +
			"(issue, repository tree, file contents, external docs) and streams a\n" +
			"step-by-step execution plan for the issue.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.repo == "" || !strings.Contains(opts.repo, "/") {
				return fmt.Errorf("--repo must be in 'owner/name' format, got %q", opts.repo)
			}
			if opts.issue <= 0 {
				return fmt.Errorf("--issue must be a positive issue number")
			}
			return runPlanner(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.repo, "repo", "", "GitHub repo in 'owner/name' format")
	cmd.Flags().IntVar(&opts.issue, "issue", 0, "issue number to plan for")
	cmd.Flags().StringVar(&opts.provider, "provider", "openai", "model provider (openai, anthropic, ...)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (provider default when empty)")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", planloop.DefaultRunConfig().MaxTurns, "max model consultations per run")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "output", "directory for the saved plan")

	viper.SetEnvPrefix("planloop")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"repo", "issue", "provider", "model", "max-turns", "output-dir"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	cobra.OnInitialize(func() {
		opts.repo = viper.GetString("repo")
		opts.issue = viper.GetInt("issue")
		opts.provider = viper.GetString("provider")
		opts.model = viper.GetString("model")
		opts.maxTurns = viper.GetInt("max-turns")
		opts.outputDir = viper.GetString("output-dir")
	})

	return cmd
}

func runPlanner(ctx context.Context, opts *cliOptions) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter, err := modelwire.NewGollmAdapter(opts.provider, "", modelwire.WithModel(opts.model))
	if err != nil {
		return fmt.Errorf("configure model provider: %w", err)
	}
	client := modelwire.NewClient(
		modelwire.WithProvider(opts.provider, adapter),
		modelwire.WithDefaultProvider(opts.provider),
	)
	defer client.Close()

	registry := planloop.NewToolRegistry()
	ghsource.RegisterTools(registry, ghsource.NewClient(ctx, os.Getenv("GITHUB_TOKEN")))
	docsource.RegisterTools(registry,
		docsource.NewSearchClient(os.Getenv("TAVILY_API_KEY"), ""),
		docsource.NewFetcher(0),
	)

	config := planloop.DefaultRunConfig()
	config.MaxTurns = opts.maxTurns
	config.Model = opts.model
	config.Provider = opts.provider

	ref := planloop.IssueRef{Repo: opts.repo, IssueNumber: opts.issue}
	loop := planloop.NewLoop(client, registry, &config)
	loop.SetSink(planloop.SinkFunc(newRenderer(os.Stdout).render))

	fmt.Printf("\nAnalyzing %s...\n\n", ref)

	result, runErr := loop.Run(ctx, ref)
	fmt.Println()

	if result != nil && result.Plan != "" {
		path, err := savePlan(opts.outputDir, ref, result.Plan)
		if err != nil {
			logger.Error("saving plan failed", "error", err)
		} else {
			fmt.Printf("---\n\nSaved: %s\n", path)
		}
	}

	if runErr != nil {
		logger.Error("run failed",
			"kind", string(planloop.KindOf(runErr)),
			"error", runErr,
		)
		return runErr
	}
	logger.Info("run complete",
		"tool_calls", result.ToolCallCount,
		"tokens", result.Usage.TotalTokens,
	)
	return nil
}
