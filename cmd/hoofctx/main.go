// hoofctx: context engine MCP server for coding assistants.
//
// It assembles budgeted context bundles (rules, project snapshot, active
// work and relevant memories) for any AI coding tool that speaks MCP.
//
// Usage:
//
//	hoofctx serve                                   # Start MCP server (stdio transport)
//	hoofctx sweep                                   # Recompute active work everywhere (nightly)
//	hoofctx recompute --workspace acme --project api
//	hoofctx bundle --workspace acme --project api --q "fix billing"
//	hoofctx version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/bundle"
	"github.com/HendryAvila/hoofctx/internal/config"
	ctxserver "github.com/HendryAvila/hoofctx/internal/server"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hoofctx",
	Short: "hoofctx - context engine MCP server",
	Long: `hoofctx assembles token-budgeted context bundles for AI coding tools.

Add it to your AI tool's MCP config:

  {
    "mcpServers": {
      "hoofctx": {
        "command": "hoofctx",
        "args": ["serve"]
      }
    }
  }`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// stdout belongs to the MCP transport, so logs go to stderr.
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		logger.Info("serving", zap.String("version", ctxserver.Version))
		return server.ServeStdio(ctxserver.New(e))
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Recompute active work for every project with activity logging enabled",
	Long: `Runs the nightly active-work sweep: every project of every workspace
with activity auto-logging enabled is recomputed against its workspace policy.
Per-project failures are reported without stopping the sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Sweeper.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if len(res.Failures) > 0 {
			return fmt.Errorf("sweep: %d project(s) failed", len(res.Failures))
		}
		return nil
	},
}

var (
	workspaceKey string
	projectKey   string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute active work for one project",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		ws, proj, err := e.Directory.Resolve(ctx, workspaceKey, projectKey)
		if err != nil {
			return fmt.Errorf("resolving %s/%s: %w", workspaceKey, projectKey, err)
		}
		res, err := e.Reconciler.Recompute(ctx, ws.ID, proj.ID, time.Now(), e.Directory.Policy(ws))
		if err != nil {
			return fmt.Errorf("recompute: %w", err)
		}
		return printJSON(cmd, activework.Report{WorkspaceKey: ws.Key, ProjectKey: proj.Key, Result: res})
	},
}

var (
	bundleQuery   string
	bundleSubpath string
	bundleUser    string
	bundleBudget  int
	bundleDebug   bool
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Print the context bundle for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		req := bundle.Request{
			WorkspaceKey: workspaceKey,
			ProjectKey:   projectKey,
			UserID:       bundleUser,
			Query:        bundleQuery,
			Subpath:      bundleSubpath,
			Mode:         bundle.ModeDefault,
			Budget:       bundleBudget,
		}
		if bundleDebug {
			req.Mode = bundle.ModeDebug
		}
		b, err := e.Bundles.Build(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		return printJSON(cmd, b)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// The logger is not needed here.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hoofctx v%s\n", ctxserver.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.hoofctx/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, c := range []*cobra.Command{recomputeCmd, bundleCmd} {
		c.Flags().StringVar(&workspaceKey, "workspace", "", "workspace key")
		c.Flags().StringVar(&projectKey, "project", "", "project key")
		_ = c.MarkFlagRequired("workspace")
		_ = c.MarkFlagRequired("project")
	}
	bundleCmd.Flags().StringVar(&bundleQuery, "q", "", "query describing the task")
	bundleCmd.Flags().StringVar(&bundleSubpath, "subpath", "", "repository area being worked on")
	bundleCmd.Flags().StringVar(&bundleUser, "user", "", "user id for user rules and persona preference")
	bundleCmd.Flags().IntVar(&bundleBudget, "budget", 0, "total token budget (default from config)")
	bundleCmd.Flags().BoolVar(&bundleDebug, "debug", false, "include selection reasons and candidates")

	rootCmd.AddCommand(serveCmd, sweepCmd, recomputeCmd, bundleCmd, versionCmd)
}

func openEngine() (*ctxserver.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	e, err := ctxserver.NewEngine(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func main() {
	// Graceful shutdown on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
