// Package cli implements the homeonmap command line client on top of the
// session, map and form packages.
package cli

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/homeonmap/backend/internal/apiclient"
	"github.com/homeonmap/backend/internal/models"
	"github.com/homeonmap/backend/internal/session"
)

// DefaultAPI is used when HOMEONMAP_API is unset.
const DefaultAPI = "http://localhost:8080"

// App carries the settings shared by every command.
type App struct {
	APIURL   string
	StateDir string
	Retry    session.RetryPolicy
	HTTP     *http.Client
}

// FromEnv reads HOMEONMAP_API and HOMEONMAP_STATE_DIR.
func FromEnv() *App {
	app := &App{
		APIURL:   os.Getenv("HOMEONMAP_API"),
		StateDir: os.Getenv("HOMEONMAP_STATE_DIR"),
		Retry:    session.DefaultRetryPolicy,
	}
	if app.APIURL == "" {
		app.APIURL = DefaultAPI
	}
	if app.StateDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			app.StateDir = filepath.Join(dir, "homeonmap")
		} else {
			app.StateDir = ".homeonmap"
		}
	}
	return app
}

func (a *App) tokens() *apiclient.FileTokenStore {
	return apiclient.NewFileTokenStore(filepath.Join(a.StateDir, "token"))
}

func (a *App) client() *apiclient.Client {
	hc := a.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return apiclient.New(a.APIURL, a.tokens(), hc)
}

func (a *App) session(c *apiclient.Client) *session.Store {
	return session.New(c,
		session.NewFileIntentStore(filepath.Join(a.StateDir, "intent.json")),
		session.WithRetryPolicy(a.Retry),
		session.WithLoginMode(models.ModeCLI),
	)
}

// RootCmd returns the homeonmap command tree.
func RootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "homeonmap",
		Short:         "Browse and publish property listings on the map",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		LoginCmd(app),
		LogoutCmd(app),
		WhoamiCmd(app),
		ListingsCmd(app),
		PresetsCmd(),
		AddCmd(app),
		DeleteCmd(app),
		EnhanceCmd(app),
		EventsCmd(app),
	)
	return root
}
