package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/crmkit/crm_services/internal/crm_service/adapters/grpc_clients"
	"github.com/crmkit/crm_services/internal/platform/config"
	"github.com/crmkit/crm_services/internal/platform/logger"
)

// app carries what subcommands share. dial is replaceable in tests.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	dial   func(ctx context.Context, name, target string) (*grpc.ClientConn, error)
}

func wireApp() (*app, error) {
	cfg, err := config.Load("crmctl")
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)
	return &app{
		cfg:    cfg,
		logger: log,
		dial: func(ctx context.Context, name, target string) (*grpc.ClientConn, error) {
			return grpc_clients.Dial(ctx, name, target, log)
		},
	}, nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "crmctl",
		Short:         "Operate the CRM notification services",
		Long:          "crmctl issues auth tokens, triggers welcome/recall/remind runs, inspects cohorts and watches outgoing notifications.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if a == nil {
		var err error
		a, err = wireApp()
		if err != nil {
			rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
				return err
			}
			return rootCmd
		}
	}

	rootCmd.AddCommand(
		newKeysCmd(a),
		newTokenCmd(a),
		newWelcomeCmd(a),
		newRecallCmd(a),
		newRemindCmd(a),
		newQueryCmd(a),
		newWatchCmd(a),
	)
	return rootCmd
}
