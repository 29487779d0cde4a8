package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/config"
	"github.com/nickmessing/firemodel/internal/cli/ui"
)

var (
	initBackend   string
	initURL       string
	initAuditPath string
	initYes       bool
	initForce     bool
)

var backends = []string{config.BackendMemory, config.BackendRedis, config.BackendPostgres, config.BackendSQLite}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a firemodel.yaml",
		Long: `Create a firemodel.yaml configuration in the given directory (default: the
current directory).

Without --yes you are prompted for the database backend and its connection
settings. Models are added to the file afterwards.`,
		Example: `  # Prompt for settings
  firemodel init

  # Use an SQLite file without prompting
  firemodel init --yes --backend sqlite --url file:firemodel.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}

	cmd.Flags().StringVar(&initBackend, "backend", config.BackendMemory, "Database backend (memory, redis, postgres, sqlite)")
	cmd.Flags().StringVar(&initURL, "url", "", "Database URL for the postgres and sqlite backends")
	cmd.Flags().StringVar(&initAuditPath, "audit-path", "auditing", "Database path of the audit logs")
	cmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Accept flag values without prompting")
	cmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if existing, err := config.FindFile(dir); err == nil && !initForce {
		return usagef("%s already exists (use --force to overwrite)", existing)
	}

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Backend: initBackend,
			URL:     initURL,
			Table:   "firemodel_nodes",
			Redis:   config.RedisConfig{Addr: "localhost:6379", Prefix: "firemodel:"},
		},
		Audit:    config.AuditConfig{Path: initAuditPath},
		Dispatch: config.DispatchConfig{Workers: 4},
		Relay:    config.RelayConfig{Addr: "localhost:8787"},
	}

	if !initYes {
		if err := promptDatabase(&cfg.Database); err != nil {
			return err
		}
	}

	path := filepath.Join(dir, config.FileName+".yaml")
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Created %s (%s backend)", path, cfg.Database.Backend), noColor)
	return nil
}

// promptDatabase asks for the backend and the settings it needs
func promptDatabase(cfg *config.DatabaseConfig) error {
	prompt := &survey.Select{
		Message: "Database backend:",
		Options: backends,
		Default: cfg.Backend,
	}
	if err := survey.AskOne(prompt, &cfg.Backend); err != nil {
		return err
	}

	switch cfg.Backend {
	case config.BackendRedis:
		addr := &survey.Input{Message: "Redis address:", Default: cfg.Redis.Addr}
		if err := survey.AskOne(addr, &cfg.Redis.Addr, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		password := &survey.Password{Message: "Redis password (optional):"}
		if err := survey.AskOne(password, &cfg.Redis.Password); err != nil {
			return err
		}
	case config.BackendPostgres, config.BackendSQLite:
		def := cfg.URL
		if def == "" && cfg.Backend == config.BackendSQLite {
			def = "file:firemodel.db"
		}
		url := &survey.Input{Message: "Database URL:", Default: def}
		if err := survey.AskOne(url, &cfg.URL, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	return nil
}
