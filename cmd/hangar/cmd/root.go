package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-hangar/internal/api"
	"go-hangar/internal/config"
	"go-hangar/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// logLevelFlag holds the value of the --log-level flag
var logLevelFlag string

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base
// or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hangar",
	Short: "Game library launcher core",
	Long: `Hangar manages a library of installed games: it queues and runs
downloads, deploys builds into install locations, keeps them patched, and
launches them.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "hangar.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error; overrides config)")
}

// loadGlobalConfig loads the configuration, applies flag overrides, and
// sets up logging and the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal here: commands check the fields they need and fail
		// with a precise message if something required is missing.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	level := globalConfig.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = logLevelFlag
	}
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			log.Warnf("Unknown log level %q, keeping default", level)
		} else {
			log.SetLevel(parsed)
		}
	}

	logApi := cmd.Flags().Changed("log-api") && logApiFlag

	globalHttpTransport = http.DefaultTransport
	if logApi {
		logFilePath := "api.log"
		if globalConfig.LibraryPath != "" {
			if _, statErr := os.Stat(globalConfig.LibraryPath); statErr == nil {
				logFilePath = filepath.Join(globalConfig.LibraryPath, logFilePath)
			}
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}
