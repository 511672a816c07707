// Package cmd implements the pips command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/fang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rand/pips/internal/config"
	"github.com/rand/pips/internal/llm"
	"github.com/rand/pips/internal/logging"
	"github.com/rand/pips/internal/pips"
	"github.com/rand/pips/internal/sandbox"
)

var rootCmd = &cobra.Command{
	Use:   "pips",
	Short: "Per-instance program synthesis solver",
	Long: `pips answers natural-language problems by deciding, per problem,
whether to reason step by step or to synthesize and iteratively refine
Python code, executing candidates in a sandbox and critiquing the
results until they hold up.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, rootCmd)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// appContext is everything a command needs after setup.
type appContext struct {
	Config  config.Config
	Logger  *slog.Logger
	Service *pips.Service
	Options pips.Options

	closeLog func() error
}

func (a *appContext) Shutdown() {
	a.Service.Wait()
	_ = a.closeLog()
}

// setupApp loads config, wires logging and builds the solve service.
func setupApp(cmd *cobra.Command) (*appContext, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	logger, closeLog := logging.Setup(cfg.Logging)

	client, err := buildClient(cfg.Model, cfg.Model.Model)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	critic := client
	if cfg.Model.CriticModel != "" {
		critic, err = buildClient(cfg.Model, cfg.Model.CriticModel)
		if err != nil {
			_ = closeLog()
			return nil, err
		}
	}

	exec, err := sandbox.NewPythonExecutor(sandbox.Options{
		PythonPath: cfg.Sandbox.PythonPath,
		WorkDir:    cfg.Sandbox.WorkDir,
	})
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("sandbox setup: %w", err)
	}

	orch := pips.NewOrchestrator(client, exec,
		pips.WithCriticClient(critic),
		pips.WithLogger(logger),
		pips.WithMetrics(pips.NewMetrics(prometheus.DefaultRegisterer)),
	)

	return &appContext{
		Config:  cfg,
		Logger:  logger,
		Service: pips.NewService(orch, logger),
		Options: pips.Options{
			MaxIterations:    cfg.Solver.MaxIterations,
			Temperature:      cfg.Solver.Temperature,
			TopP:             cfg.Solver.TopP,
			MaxTokens:        cfg.Solver.MaxTokens,
			MaxExecutionTime: cfg.Solver.MaxExecutionTime,
		},
		closeLog: closeLog,
	}, nil
}

func buildClient(mc config.ModelConfig, model string) (llm.Client, error) {
	switch mc.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  mc.APIKey,
			BaseURL: mc.BaseURL,
			Model:   model,
		})
	default:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  mc.APIKey,
			BaseURL: mc.BaseURL,
			Model:   model,
		})
	}
}
