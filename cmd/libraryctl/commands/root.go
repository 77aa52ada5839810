package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rongwang/library-server/internal/config"
	"github.com/rongwang/library-server/internal/utils"
)

var (
	// Global flags
	configFile string
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "libraryctl",
	Short: "Maintenance tool for the library server",
	Long: `libraryctl runs maintenance tasks against the library database.

Settings come from the same environment variables as the server, optionally
overlaid by a TOML file given with --config or LIBRARY_CONFIG.

Examples:
  libraryctl migrate
  libraryctl load books ./data/books.csv
  libraryctl load users ./data/users.csv --json`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file (overrides LIBRARY_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig reads the configuration and refuses the memory backend, which
// would discard everything on exit
func loadConfig() (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadConfigFile(configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cfg.Store.Backend != config.BackendPostgres {
		return nil, zerolog.Nop(), fmt.Errorf("libraryctl needs the %q store backend, got %q", config.BackendPostgres, cfg.Store.Backend)
	}

	return cfg, utils.NewLogger(cfg.Log), nil
}
