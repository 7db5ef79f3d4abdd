package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/casefolio/casefolio/internal/config"
	"github.com/casefolio/casefolio/internal/logging"
	"github.com/casefolio/casefolio/internal/registry"
	"github.com/casefolio/casefolio/internal/server"
	"github.com/casefolio/casefolio/internal/store"
	"github.com/casefolio/casefolio/internal/templates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the case-study API server",
	Long: `Start the HTTP server: case-study CRUD with optimistic concurrency,
template rendering, and a websocket stream of template changes.

Examples:
  casefolio serve
  casefolio serve --port 9000 --templates ./my-templates
  CASEFOLIO_STORAGE_PATH=/data/casefolio.db casefolio serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	registerServeFlags(serveCmd.Flags())
}

func registerServeFlags(flags *pflag.FlagSet) {
	flags.IntP("port", "p", 8090, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.String("db", "casefolio.db", "SQLite database path")
	flags.StringP("templates", "t", "./templates", "Template directory")
	flags.Bool("watch", true, "Reload templates on file changes")

	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("server.host", flags.Lookup("host"))
	viper.BindPFlag("storage.path", flags.Lookup("db"))
	viper.BindPFlag("templates.dir", flags.Lookup("templates"))
	viper.BindPFlag("templates.watch", flags.Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := store.NewCaseStudyRepository(db)

	reg := registry.NewTemplateRegistry()
	templateStore := templates.NewStore(cfg.Templates.Dir, reg, logger)
	if err := templateStore.Load(ctx); err != nil {
		// The server is still useful without templates; log and move on.
		logger.Warn(ctx, err, "template directory not loaded", "dir", cfg.Templates.Dir)
	}
	if cfg.Templates.Watch {
		if err := templateStore.Watch(ctx); err != nil {
			logger.Warn(ctx, err, "template watching disabled")
		}
	}

	return server.New(cfg, logger, repo, reg).Start(ctx)
}
