package cmd

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"invoice-reconciliation-service/cmd/reconciler/config"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var (
	cfgFile   string
	verbose   bool
	configErr error
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"

	// boundFlags remembers every flag bound to a viper key
	boundFlags = map[string]*pflag.Flag{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Invoice to ledger reconciliation tool",
	Long: `Reconciler matches supplier invoices against the payment ledger exported
from accounting. Matching runs in four phases (exact, partial, fuzzy and
contextual), each one only seeing what the previous phases left, and every
run ends with a quality grade from A to F.

Settings come from flags, RECONCILER_* environment variables, a .env file
in the working directory and an optional YAML file given with --config.

Examples:
  reconciler reconcile --invoices invoices.json --ledger registre.xlsx
  reconciler reconcile -i factures.json,avoir.pdf -l janvier.csv,fevrier.csv --format json -o report.json
  reconciler history --grade F
  reconciler version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", config.DefaultHistoryPath(), "history database path")

	bindFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	bindFlag(config.KeyHistoryPath, rootCmd.PersistentFlags().Lookup("db"))
}

func bindFlag(key string, flag *pflag.Flag) {
	boundFlags[key] = flag
	_ = viper.BindPFlag(key, flag)
}

// initConfig reads in .env, the config file and ENV variables.
func initConfig() {
	configErr = nil

	// A missing .env is the normal case.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check that the file exists and is valid YAML")
			return
		}
	}

	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadSettings resolves the settings and installs the configured logger
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(settings.Logger)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Logger, err)
	}
	logger.SetGlobalLogger(log)

	if cfgFile != "" {
		log.WithField(logger.FieldFile, viper.ConfigFileUsed()).Debug("Using config file")
	}
	return settings, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
