// Command createadmin bootstraps an administrator account.
//
// If the username exists its role is set to admin; otherwise a new admin
// account is created. All accounts are listed afterwards.
//
//	go run ./cmd/createadmin -username admin1 -email admin@example.com -password s3cret!
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/config"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
	"github.com/sakif/stackit/internal/server"
)

func main() {
	username := flag.String("username", "admin1", "admin username")
	email := flag.String("email", "", "email for a new account (default <username>@stackit.local)")
	password := flag.String("password", "", "password for a new account (required when creating)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.DBDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("failed to create database directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	passwords := auth.NewPasswordService(cfg.BcryptCost)
	if err := ensureAdmin(ctx, store, passwords, *username, *email, *password); err != nil {
		logger.Error("failed to create admin", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}

	if err := printUsers(ctx, store); err != nil {
		logger.Error("failed to list users", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}
}

func ensureAdmin(ctx context.Context, users repository.UserRepository, passwords *auth.PasswordService, username, email, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("-username must not be empty")
	}

	existing, err := users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if err := users.UpdateRole(ctx, existing.ID, model.RoleAdmin); err != nil {
			return fmt.Errorf("promoting %s: %w", username, err)
		}
		fmt.Printf("%s is now an admin\n", username)
		return nil
	case !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("looking up %s: %w", username, err)
	}

	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("-password of at least %d characters is required to create %s", auth.MinPasswordLength, username)
	}
	if email == "" {
		email = username + "@stackit.local"
	}
	hash, err := passwords.Hash(password)
	if err != nil {
		return err
	}

	u := &model.User{
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}
	if err := users.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("creating %s: %w", username, err)
	}
	fmt.Printf("created admin %s (%s)\n", u.Username, u.ID)
	return nil
}

func printUsers(ctx context.Context, users repository.UserRepository) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tEMAIL\tROLE")

	opts := repository.ListOptions{Limit: repository.MaxListLimit}
	for {
		page, err := users.ListUsers(ctx, opts)
		if err != nil {
			return err
		}
		for _, u := range page {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.Email, u.Role)
		}
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += len(page)
	}
	return tw.Flush()
}
