package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-karotz/internal/auth"
	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-karotz/migrations"
)

// newProbeCmd checks that a host answers like an OpenKarotz before it is
// added to the config.
func newProbeCmd() *cobra.Command {
	var (
		host    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Test the connection to a rabbit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := karotz.Probe(cmd.Context(), host, timeout); err != nil {
				return fmt.Errorf("probe %s: %w", host, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OpenKarotz reachable at %s\n", host)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "rabbit hostname or IP")
	cmd.Flags().DurationVar(&timeout, "timeout", karotz.DefaultSnapshotTimeout, "connection timeout")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	withDB := func(fn func(ctx context.Context, cmd *cobra.Command, db *database.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // CLI exit
			return fn(cmd.Context(), cmd, db)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, _ *cobra.Command, db *database.DB) error {
				return db.Migrate(ctx, migrations.FS)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, _ *cobra.Command, db *database.DB) error {
				return db.MigrateDown(ctx, migrations.FS)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, db *database.DB) error {
				applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range applied {
					fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
				}
				return nil
			}),
		},
	)
	return cmd
}

// newTokenCmd mints an access token for the REST API.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !auth.IsValidRole(auth.Role(role)) {
				return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
			}
			if ttl == 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (user or integration name)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
