package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/garrison/internal/db"
	"github.com/erazemk/garrison/internal/jobs"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/store"
)

func (a *app) initCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and the first admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.DB.Path
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("database file %s already exists", path)
			}

			database, password, err := initDatabase(cmd.Context(), path, a.cfg.Admin.Username)
			if err != nil {
				return err
			}
			database.Close()

			printInitResult(path, a.cfg.Admin.Username, password)
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "", "admin username (default admin)")
	return cmd
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			version, err := db.SchemaVersion(cmd.Context(), database)
			if err != nil {
				return fmt.Errorf("reading schema version: %w", err)
			}
			fmt.Printf("Schema at version %d\n", version)
			return nil
		},
	}
}

func (a *app) auditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute equipment allocation and report inconsistent lots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			entries, err := store.AuditInventory(cmd.Context(), database)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tITEM\tQUANTITY\tAVAILABLE\tALLOCATED\tQUEUED\tUNACCOUNTED\tOK")
			inconsistent := 0
			for _, e := range entries {
				if !e.Consistent || e.Unaccounted != 0 {
					inconsistent++
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%t\n",
					e.PurchaseID, e.Item, e.Quantity, e.Available, e.Allocated, e.Queued, e.Unaccounted, e.Consistent)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if inconsistent > 0 {
				return fmt.Errorf("%d of %d lots are inconsistent", inconsistent, len(entries))
			}
			return nil
		},
	}
}

func (a *app) jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run maintenance jobs",
	}

	var name string
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one job once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			return jobs.NewRegistry(database, jobs.Schedules{}).Run(cmd.Context(), name)
		},
	}
	run.Flags().StringVarP(&name, "job", "j", "", "job name ("+strings.Join(jobs.NewRegistry(nil, jobs.Schedules{}).Names(), ", ")+")")
	_ = run.MarkFlagRequired("job")

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs and their schedules",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			r := jobs.NewRegistry(nil, jobs.Schedules{
				ReturnRetry:  a.cfg.Jobs.ReturnRetry,
				TokenCleanup: a.cfg.Jobs.TokenCleanup,
			})
			for _, n := range r.Names() {
				schedule := r[n].Schedule
				if schedule == "" {
					schedule = "(manual)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", n, schedule)
			}
		},
	}

	cmd.AddCommand(run, list)
	return cmd
}

// openDatabase opens an existing database and brings its schema up to date.
func (a *app) openDatabase(ctx context.Context) (*sql.DB, error) {
	path := a.cfg.DB.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("database file %s does not exist, run init first", path)
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// initDatabase creates a new database, runs migrations, and creates the admin user.
func initDatabase(ctx context.Context, path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(format string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf(format, err)
	}

	if err := db.Migrate(ctx, database); err != nil {
		return fail("running migrations: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail("hashing password: %w", err)
	}

	_, err = store.CreateUser(ctx, database, &model.User{
		Username:     adminUsername,
		PasswordHash: string(hash),
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         model.RoleAdmin,
		Department:   "Command",
	})
	if err != nil {
		return fail("creating admin user: %w", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
