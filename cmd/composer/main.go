// Command composer authors composite products against a running back office API. It drives the same
// workflow controller as the admin UI from YAML manifests.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mobilia/backoffice/internal/client"
	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/observability"
)

const (
	defaultAPIURL   = "http://localhost:8080/api/v1"
	defaultParallel = 4
)

// backOffice is the part of client.Client used by the commands.
type backOffice interface {
	composite.VariantSource
	composite.CombinationGenerator
	composite.Uploader
	composite.Store
	composite.AssetSaver

	ListProducts(ctx context.Context) ([]domain.BaseProduct, error)
	GenerateCombinations(ctx context.Context, productAID, productBID string, selectionA, selectionB []domain.Variant) (client.GenerateResult, error)
	CreateWithKey(ctx context.Context, product domain.CompositeProduct, key string) (domain.CompositeProduct, error)
	Get(ctx context.Context, productID string) (domain.CompositeProduct, error)
	List(ctx context.Context, opts client.ListOptions) (client.ListPage, error)
}

type app struct {
	apiURL   string
	token    string
	logLevel string

	out     io.Writer
	logger  *zap.Logger
	api     backOffice
	connect func(a *app) (backOffice, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, connect: dialAPI}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "composer",
		Short:         "Author composite products against the back office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.logger == nil {
				logger, err := observability.NewConsoleLogger(a.logLevel)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				a.logger = logger.Named("composer")
			}
			if a.api == nil {
				api, err := a.connect(a)
				if err != nil {
					return err
				}
				a.api = api
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.apiURL, "api", envOr("MOBILIA_API_URL", defaultAPIURL), "Base URL of the back office API")
	cmd.PersistentFlags().StringVar(&a.token, "token", os.Getenv("MOBILIA_API_TOKEN"), "Firebase ID token of a staff account")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newProductsCmd(a),
		newGenerateCmd(a),
		newApplyCmd(a),
		newShowCmd(a),
		newListCmd(a),
	)
	return cmd
}

func dialAPI(a *app) (backOffice, error) {
	var opts []client.Option
	if strings.TrimSpace(a.token) != "" {
		opts = append(opts, client.WithBearerToken(a.token))
	}
	c, err := client.New(a.apiURL, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
