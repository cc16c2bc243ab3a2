package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/form"
	"github.com/homeonmap/backend/internal/mapview"
	"github.com/homeonmap/backend/internal/models"
)

func LoginCmd(app *App) *cobra.Command {
	var token, returnTo string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the identity provider",
		Long: "Without --token, prints the URL to open in a browser. The callback page " +
			"shows a session_token; run login again with --token to finish.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := app.client()
			st := app.session(c)

			if token == "" {
				url, err := st.Login(ctx, returnTo)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to sign in:\n  %s\nthen run: homeonmap login --token <session_token>\n", url)
				return nil
			}

			if err := app.tokens().SetToken(token); err != nil {
				return err
			}
			id, err := st.Restore(ctx)
			if err != nil {
				return err
			}
			if id == nil {
				_ = app.tokens().Clear()
				return errors.New("token rejected by server")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Email)

			in, err := st.ConsumeIntent()
			if err != nil {
				return err
			}
			if in != nil && in.ReturnTo != "" && in.ReturnTo != "/" {
				fmt.Fprintf(cmd.OutOrStdout(), "Continue with: %s\n", in.ReturnTo)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token shown after the browser login")
	cmd.Flags().StringVar(&returnTo, "return-to", "", "where to continue after login, e.g. /add")
	return cmd
}

func LogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.session(app.client()).Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func WhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.session(app.client()).Restore(cmd.Context())
			if err != nil {
				return err
			}
			if id == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Email, id.ID)
			return nil
		},
	}
}

func printListings(cmd *cobra.Command, snap mapview.Snapshot) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tLOCALITY\tICON\tLAT\tLNG")
	for _, l := range snap.Listings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%.5f\t%.5f\n",
			l.ID, l.Title, l.Price, l.Locality, mapview.IconFor(l.Role), l.Lat, l.Lng)
	}
	tw.Flush()
}

func ListingsCmd(app *App) *cobra.Command {
	var mine bool
	var role, near string
	var limit int
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "List listings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := app.client()
			filter := models.ListingFilter{Role: role, Limit: limit}
			if mine {
				id, err := app.session(c).Restore(ctx)
				if err != nil {
					return err
				}
				if id == nil {
					return apperr.ErrAuthRequired
				}
				filter.OwnerID = id.ID
			}

			view := mapview.New(c, filter)
			defer view.Close()
			if near != "" {
				if err := view.PanTo(near); err != nil {
					return err
				}
			}
			if err := view.Refresh(ctx); err != nil {
				return err
			}
			snap := view.Snapshot()
			if near != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Centered on %.4f,%.4f zoom %d\n", snap.Center.Lat, snap.Center.Lng, snap.Zoom)
			}
			printListings(cmd, snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only my listings")
	cmd.Flags().StringVar(&role, "role", "", "filter by role (owner, dealer, broker)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of listings")
	cmd.Flags().StringVar(&near, "near", "", "center the map on a preset place")
	return cmd
}

func PresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the places the map can jump to",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range mapview.Presets() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %.4f,%.4f\n", p.Name, p.Center.Lat, p.Center.Lng)
			}
			return nil
		},
	}
}

func readImage(path string) (*blob.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.UploadError{Reason: "read image", Err: err}
	}
	return &blob.File{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func AddCmd(app *App) *cobra.Command {
	var f form.Form
	var imagePath, preset string
	var lat, lng float64
	var imageOptional bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Publish a listing at a map location",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := app.client()
			st := app.session(c)
			if _, err := st.Restore(ctx); err != nil {
				return err
			}
			if st.Current() == nil {
				return apperr.ErrAuthRequired
			}

			view := mapview.New(c, models.ListingFilter{})
			defer view.Close()
			view.SetMode(mapview.ModeCreate)
			switch {
			case cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng"):
				view.OnMapClick(models.Pin{Lat: lat, Lng: lng})
			case preset != "":
				p, err := mapview.LookupPreset(preset)
				if err != nil {
					return err
				}
				view.OnMapClick(p.Center)
			}

			if imagePath != "" {
				img, err := readImage(imagePath)
				if err != nil {
					return err
				}
				f.Image = img
			}

			opts := []form.Option{
				form.WithNavigator(form.NavigatorFunc(func(string) {})),
				form.WithAfterCreate(func(ctx context.Context, _ *models.Listing) {
					view.ClearDraft()
					_ = view.Refresh(ctx)
				}),
			}
			if imageOptional {
				opts = append(opts, form.WithImagePolicy(form.ImageOptional))
			}
			ctrl := form.New(st, c, c, opts...)

			saved, err := ctrl.Submit(ctx, f, view.DraftPin())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created listing %s\n", saved.ID)
			if saved.ImageURL != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Image: %s\n", *saved.ImageURL)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Title, "title", "", "listing title")
	fl.StringVar(&f.Description, "description", "", "free text description")
	fl.StringVar(&f.Price, "price", "", "price in whole rupees")
	fl.StringVar(&f.Locality, "locality", "", "locality or sector")
	fl.StringVar(&f.Phone, "phone", "", "10 digit contact number")
	fl.StringVar(&f.Role, "role", "", "owner, dealer or broker")
	fl.Float64Var(&lat, "lat", 0, "latitude")
	fl.Float64Var(&lng, "lng", 0, "longitude")
	fl.StringVar(&preset, "preset", "", "place the pin at a preset place")
	fl.StringVar(&imagePath, "image", "", "path to an image file")
	fl.BoolVar(&imageOptional, "image-optional", false, "publish without the image if the upload fails")
	return cmd
}

func DeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a listing you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := app.client()
			id, err := app.session(c).Restore(ctx)
			if err != nil {
				return err
			}
			if id == nil {
				return apperr.ErrAuthRequired
			}

			view := mapview.New(c, models.ListingFilter{})
			defer view.Close()
			if err := view.Refresh(ctx); err != nil {
				return err
			}
			if err := view.DeleteListing(ctx, args[0], *id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func EnhanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance [text]",
		Short: "Rewrite a listing description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := app.client().Enhance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func EventsCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the listing audit trail (admins only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := app.client().Events(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tTYPE\tLISTING\tTITLE\tACTOR")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					ev.CreatedAt.Format("2006-01-02 15:04"), ev.Type, ev.ListingID, ev.Title, ev.ActorEmail)
			}
			tw.Flush()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of events")
	return cmd
}
