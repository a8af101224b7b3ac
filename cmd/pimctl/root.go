package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixora/pim/internal/app"
	"github.com/fixora/pim/internal/config"
	"github.com/fixora/pim/internal/logger"
)

// env carries what the commands load and where diagnostics go
type env struct {
	loadConfig func() (*config.Config, error)
	stderr     io.Writer

	workflowFile string
	outputFmt    string
}

func defaultEnv() *env {
	return &env{loadConfig: config.Load, stderr: os.Stderr}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "pimctl",
		Short:         "Operator CLI for the PIM editorial workflow",
		Long:          "Inspects workflow tables and permissions, verifies audit chains and bootstraps tenants.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&e.workflowFile, "workflow", "", "workflow YAML file (default: WORKFLOW_CONFIG_FILE)")
	root.PersistentFlags().StringVarP(&e.outputFmt, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newRulesCmd(e),
		newCanCmd(e),
		newVerifyChainCmd(e),
		newCreateAdminCmd(e),
		newSeedCmd(e),
	)
	return root
}

func (e *env) config() (*config.Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if e.workflowFile != "" {
		cfg.Workflow.ConfigFile = e.workflowFile
	}
	return cfg, nil
}

func (e *env) workflow() (*config.WorkflowConfig, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return config.LoadWorkflowConfig(cfg.Workflow.ConfigFile, cfg.Quality)
}

// build wires the full application; logs go to stderr so stdout stays parseable
func (e *env) build(ctx context.Context) (*app.App, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      "text",
		ServiceName: "pimctl",
		Output:      e.stderr,
	})
	return app.Build(ctx, cfg, log)
}
