// Package metasctl implements the metas operator command line: window
// previews, fixture seeding, token issuance, dashboards and the MCP bridge.
package metasctl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/metas/internal/platform/cmd"
	"github.com/louisbranch/metas/internal/platform/logging"
	"github.com/louisbranch/metas/internal/services/metas/api/mcptools"
	server "github.com/louisbranch/metas/internal/services/metas/app"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/identity"
	"github.com/louisbranch/metas/internal/services/metas/seed"
	"github.com/louisbranch/metas/internal/services/metas/service"
)

// operator is the identity offline commands act as.
var operator = access.Actor{UserID: "metasctl", Name: "metasctl", Role: access.RoleAdmin}

// Config holds the environment shared with the metas server so both read the
// same store and signing key.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/metas.db"`
	BadgerDir   string `env:"BADGER_DIR" envDefault:"data/metas-badger"`

	SigningKey string `env:"AUTH_SIGNING_KEY"`
	Issuer     string `env:"AUTH_ISSUER" envDefault:"metas"`
	Audience   string `env:"AUTH_AUDIENCE" envDefault:"metas-api"`

	Locale string `env:"LOCALE" envDefault:"en-US"`

	Log logging.Config
}

// LoadConfig reads Config from METAS_ environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Execute runs the command line against args.
func Execute(ctx context.Context, cfg Config, args []string) error {
	root := NewRootCommand(cfg)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type rootOptions struct {
	cfg    Config
	logger *zap.Logger
}

// NewRootCommand builds the metasctl command tree. cfg supplies the flag
// defaults.
func NewRootCommand(cfg Config) *cobra.Command {
	opts := &rootOptions{cfg: cfg}
	root := &cobra.Command{
		Use:           "metasctl",
		Short:         "Operate a metas goal-management deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(opts.cfg.Log)
			if err != nil {
				return err
			}
			opts.logger = logger.Named(entrypoint.ServiceMetasCtl)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfg.StoreDriver, "store", cfg.StoreDriver, "Storage driver: sqlite or badger")
	flags.StringVar(&opts.cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flags.StringVar(&opts.cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "Badger data directory")
	flags.StringVar(&opts.cfg.Locale, "locale", cfg.Locale, "Default locale for window labels")

	root.AddCommand(
		newWindowsCommand(opts),
		newSeedCommand(opts),
		newTokenCommand(opts),
		newDashboardCommand(opts),
		newMCPCommand(opts),
	)
	return root
}

// openService opens the configured store and wraps it in a service. The
// returned closer releases the store.
func (o *rootOptions) openService() (*service.Service, func(), error) {
	store, err := server.OpenStore(server.StoreConfig{
		Driver:    o.cfg.StoreDriver,
		DBPath:    o.cfg.DBPath,
		BadgerDir: o.cfg.BadgerDir,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	svc, err := service.New(service.Config{Store: store, Locale: o.cfg.Locale, Logger: o.logger})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() { _ = store.Close() }, nil
}

func newWindowsCommand(opts *rootOptions) *cobra.Command {
	var start, end, cadence, locale string
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Preview the windows a period would generate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDate, err := period.ParseDate(start)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			endDate, err := period.ParseDate(end)
			if err != nil {
				return fmt.Errorf("end: %w", err)
			}
			c, err := period.ParseCadence(cadence)
			if err != nil {
				return err
			}
			windows, err := service.PreviewWindows(period.CreatePeriodInput{
				Start:   startDate,
				End:     endDate,
				Cadence: c,
				Locale:  locale,
			}, opts.cfg.Locale)
			if err != nil {
				return err
			}
			return writeWindows(cmd.OutOrStdout(), windows)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cadence, "cadence", "", "Window cadence, e.g. monthly or quarterly")
	cmd.Flags().StringVar(&locale, "label-locale", "", "Locale of the window labels; defaults to --locale")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("cadence")
	return cmd
}

func writeWindows(w io.Writer, windows []period.Window) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKEY\tLABEL\tSTART\tEND")
	for _, window := range windows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			window.Ordinal, window.Key, window.Label,
			window.Start.Format(period.DateLayout), window.End.Format(period.DateLayout))
	}
	return tw.Flush()
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sectors, teams, periods, goals and grants from a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixture, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			svc, closeStore, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := seed.Apply(cmd.Context(), svc, operator, fixture, opts.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", report.Created, report.Skipped)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Seed fixture path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var subject, name, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := access.ParseRole(role)
			if err != nil {
				return err
			}
			issuer, err := identity.NewIssuer(identity.Config{
				SigningKey: []byte(opts.cfg.SigningKey),
				Issuer:     opts.cfg.Issuer,
				Audience:   opts.cfg.Audience,
			})
			if err != nil {
				return err
			}
			token, err := issuer.Issue(access.Actor{UserID: subject, Name: name, Role: parsed}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "User id carried by the token")
	cmd.Flags().StringVar(&name, "name", "", "Display name carried by the token")
	cmd.Flags().StringVar(&role, "role", string(access.RoleViewer), "Role: admin, launcher or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func newDashboardCommand(opts *rootOptions) *cobra.Command {
	var filter dashboard.Filter
	var state string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the goal-by-window dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch dashboard.CellState(state) {
			case "", dashboard.CellLaunched, dashboard.CellPending:
				filter.State = dashboard.CellState(state)
			default:
				return fmt.Errorf("state must be %q or %q", dashboard.CellLaunched, dashboard.CellPending)
			}
			svc, closeStore, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeStore()

			board, err := svc.Dashboard(cmd.Context(), operator, filter)
			if err != nil {
				return err
			}
			return writeDashboard(cmd.OutOrStdout(), board)
		},
	}
	cmd.Flags().StringVar(&filter.SectorID, "sector", "", "Sector id")
	cmd.Flags().StringVar(&filter.TeamID, "team", "", "Team id")
	cmd.Flags().StringVar(&filter.PeriodID, "period", "", "Period id")
	cmd.Flags().StringVar(&state, "state", "", "Cell state: launched or pending")
	return cmd
}

func writeDashboard(w io.Writer, board dashboard.Dashboard) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTOR\tTEAM\tGOAL\tWEIGHT\tTARGET\tWINDOWS")
	for _, row := range board.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, formatCell(cell))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			row.SectorName, row.TeamName, row.Goal.Name, row.Goal.Weight, row.Goal.Target,
			strings.Join(cells, " | "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := board.Summary
	_, err := fmt.Fprintf(w, "\ngoals %d, cells %d (launched %d, pending %d), awaiting approval %d, approval rate %.1f%%\n",
		s.TotalGoals, s.TotalCells, s.LaunchedCells, s.PendingCells, s.PendingApprovals, s.ApprovalRate)
	return err
}

func formatCell(cell dashboard.Cell) string {
	if cell.State == dashboard.CellPending {
		return cell.WindowLabel + ": -"
	}
	out := fmt.Sprintf("%s: %s (%s)", cell.WindowLabel, cell.Value, cell.ResultStatus)
	if cell.Progress != nil {
		out += fmt.Sprintf(" %d%%", *cell.Progress)
	}
	return out
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	var user, role string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only metas tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := access.ParseRole(role)
			if err != nil {
				return err
			}
			svc, closeStore, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeStore()

			srv, err := mcptools.New(mcptools.Config{
				Service: svc,
				Actor:   access.Actor{UserID: user, Name: user, Role: parsed},
				Logger:  opts.logger,
			})
			if err != nil {
				return err
			}
			return srv.ServeStdio(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&user, "user", "mcp-agent", "User id the tools run as")
	cmd.Flags().StringVar(&role, "role", string(access.RoleViewer), "Role the tools run as")
	return cmd
}
