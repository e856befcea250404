package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/mclink/internal/app"
	"github.com/router-for-me/mclink/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and runs the selected command.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mclink", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8000, "server port (also written into a generated config)")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	staffName := fs.String("create-staff", "", "create a staff user with this username and exit")
	staffPassword := fs.String("password", "", "password for -create-staff")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		log.Infof("config file not found, writing defaults to %s", configPath)
		if errWrite := app.WriteConfigFile(configPath, app.DefaultSQLiteDSN, *port); errWrite != nil {
			return errWrite
		}
	}

	switch {
	case *migrateOnly:
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case strings.TrimSpace(*staffName) != "":
		return createStaff(configPath, *staffName, *staffPassword)
	}

	portOverride := 0
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			portOverride = *port
		}
	})
	return app.RunServer(ctx, appCfg, portOverride)
}

func createStaff(configPath, username, password string) error {
	if password == "" {
		return errors.New("-password is required with -create-staff")
	}
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	if errCreate := app.CreateStaffUser(dsn, username, password); errCreate != nil {
		return errCreate
	}
	log.Infof("staff user %q created", strings.TrimSpace(username))
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
