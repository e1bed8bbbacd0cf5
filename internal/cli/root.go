package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/opsportal/internal/apiclient"
	"github.com/Lllllllleong/opsportal/internal/gcp"
	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/notify"
	"github.com/Lllllllleong/opsportal/internal/sheets"
	"github.com/Lllllllleong/opsportal/internal/staging"
)

// Config is the operator's environment. Flags override environment variables, which may
// come from a .env file in the working directory.
type Config struct {
	APIURL     string
	SheetsURL  string
	MirrorPath string
	User       string
	APIKey     string
	Verbose    bool
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	flag := func(name, env, def string) string {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			return v
		}
		return gcp.GetEnv(env, def)
	}
	cfg := Config{
		APIURL:     flag("api", "PORTAL_API_URL", ""),
		SheetsURL:  flag("sheets", "SHEETS_WEBAPP_URL", ""),
		MirrorPath: flag("mirror", "PORTAL_MIRROR", ""),
		User:       flag("user", "PORTAL_USER", ""),
		APIKey:     gcp.GetEnv("API_KEY", ""),
	}
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	if cfg.MirrorPath == "" {
		p, err := mirror.DefaultPath()
		if err != nil {
			return Config{}, err
		}
		cfg.MirrorPath = p
	}
	return cfg, nil
}

// app holds the clients of one CLI invocation. Everything is opened on first use so that
// offline commands work without a portal URL.
type app struct {
	cfg     Config
	out     io.Writer
	emitter *notify.Emitter
	changed atomic.Bool

	mirror mirror.Mirror
	closer io.Closer
	client *apiclient.Client
	portal *staging.Portal
}

func (a *app) openMirror() (mirror.Mirror, error) {
	if a.mirror != nil {
		return a.mirror, nil
	}
	db, err := mirror.OpenSQLite(a.cfg.MirrorPath)
	if err != nil {
		return nil, err
	}
	a.mirror, a.closer = db, db
	return db, nil
}

func (a *app) apiClient() (*apiclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if a.cfg.APIURL == "" {
		return nil, errors.New("portal API URL is not set (use --api or PORTAL_API_URL)")
	}
	m, err := a.openMirror()
	if err != nil {
		return nil, err
	}
	c, err := apiclient.New(apiclient.Config{BaseURL: a.cfg.APIURL, Mirror: m})
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// desks builds the staging desks and loads them. A load failure leaves the desks on
// mirrored data and is reported as a warning.
func (a *app) desks(ctx context.Context) (*staging.Portal, error) {
	if a.portal != nil {
		return a.portal, nil
	}
	c, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	var register staging.Register = missingRegister{}
	if a.cfg.SheetsURL != "" {
		s, err := sheets.New(a.cfg.SheetsURL, nil)
		if err != nil {
			return nil, err
		}
		register = s
	}
	p := staging.NewPortal(staging.Deps{Remote: c, Files: c, Mirror: a.mirror, Emitter: a.emitter}, register, a.cfg.User)
	if err := p.Load(ctx); err != nil {
		warnLine(a.out, "Could not reach the portal, showing local data: %v", err)
	}
	a.portal = p
	return p, nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

type missingRegister struct{}

var errNoRegister = errors.New("spreadsheet web app URL is not set (use --sheets or SHEETS_WEBAPP_URL)")

func (missingRegister) Lookup(context.Context, string) ([]models.JobEntry, error) {
	return nil, errNoRegister
}

func (missingRegister) Exists(context.Context, string) (bool, error) { return false, errNoRegister }

func (missingRegister) BulkAdd(context.Context, []models.JobEntry) error { return errNoRegister }

// NewRootCmd returns the portalctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{emitter: notify.NewEmitter()}

	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Operate the freight forwarding staging desks",
		Long: `portalctl stages job rows, carrier (MBL) payments and refund submissions in the
portal's remote store, keeps a local mirror for offline reads and pushes job rows to
the spreadsheet register.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			a.emitter.Subscribe(notify.EventPendingListsUpdated, func(cloudevents.Event) { a.changed.Store(true) })
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.changed.Load() && a.mirror != nil {
				if c, err := staging.PendingCounts(cmd.Context(), a.mirror); err == nil {
					fmt.Fprintf(a.out, "Pending: %d jobs, %d MBL payments, %d submissions\n", c.Jobs, c.MblPayments, c.Submissions)
				}
			}
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.String("api", "", "Portal API base URL (PORTAL_API_URL)")
	pf.String("sheets", "", "Spreadsheet web app URL (SHEETS_WEBAPP_URL)")
	pf.String("mirror", "", "Local mirror database (PORTAL_MIRROR, default ~/.opsportal/mirror.db)")
	pf.String("user", "", "Name recorded in the activity feed (PORTAL_USER)")
	pf.BoolP("verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		jobsCmd(a),
		mblCmd(a),
		submissionsCmd(a),
		bankingCmd(a),
		filesCmd(a),
		pdfCmd(a),
		ocrCmd(a),
		notificationsCmd(a),
		statusCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
