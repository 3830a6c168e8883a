package main

import (
	"fmt"
	"os"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/config"
	"auction-settlement/internal/repository"
	"auction-settlement/utils"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "auction-settlement",
	Short:         "Sealed ascending-price auction and bid settlement service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(c.Context(), cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert the Postgres schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrate needs database.driver=postgres, got %q", cfg.Database.Driver)
		}
		if args[0] == "down" {
			return repository.MigrateDown(cfg.Database.DSN)
		}
		return repository.MigrateUp(cfg.Database.DSN)
	},
}

var adminSubject string

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Print an access token carrying the admin role",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := auth.NewJWTMaker(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).GenerateToken(adminSubject, auth.RoleAdmin)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	adminTokenCmd.Flags().StringVar(&adminSubject, "subject", "admin", "subject written into the token")

	rootCmd.AddCommand(serveCmd, migrateCmd, adminTokenCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := utils.InitLogger(cfg.Logs.Level, cfg.Logs.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run: %v\n", err)
		os.Exit(1)
	}
}
