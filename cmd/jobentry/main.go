package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobentry/internal/app"
	"jobentry/internal/config"
	joberrors "jobentry/internal/errors"
	"jobentry/internal/fetcher"
	"jobentry/internal/layout"
	internalruntime "jobentry/internal/runtime"
	"jobentry/internal/setup"
)

// version is set at build time via ldflags
var version = "dev"

var (
	v          = config.NewViper()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:     "jobentry",
	Short:   "jobentry - entrypoint for managed job containers",
	Version: version,
	Long: `jobentry prepares the job container, downloads the customer code, and runs it
once under supervision. Failures are appended to the failure artifact under the
ML root for the backend to pick up.

Running jobentry without a subcommand is the same as 'jobentry run'.`,
	Run: runJob,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download and run the customer code",
	Long: `Run resolves the code setup from the AMZN_BRAKET_* environment (falling back to
SM_HPS), fetches and stages the code, binds hyperparameters for callable entry
points and runs the entry point until it exits.`,
	Run: runJob,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the image setup script, if one is configured",
	Long: `Setup downloads the script named by AMZN_BRAKET_IMAGE_SETUP_SCRIPT and runs it.
A failing script is reported but never fails the container.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, logger := mustLoadSettings()
		ctx := context.Background()

		l := layout.New(settings.MLRoot, settings.BraketRoot)
		l.SkipSymlink = settings.SkipSymlink
		if err := l.Prepare(); err != nil {
			logger.Warn("Container layout incomplete", "error", err)
		}

		f, err := app.NewProviderFactory(settings, logger).GetFetcher(fetcher.PolicyAlways)
		if err != nil {
			logger.Warn("Additional setup skipped", "error", err)
			return
		}

		// Setup installs into this image, so it always runs locally.
		runner := setup.New(f, internalruntime.NewProcessSpawner(logger), l.AdditionalSetupDir(), setup.WithLogger(logger))
		_ = runner.Perform(ctx, os.Getenv(config.EnvSetupScript))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func runJob(cmd *cobra.Command, args []string) {
	settings, logger := mustLoadSettings()
	l := layout.New(settings.MLRoot, settings.BraketRoot)
	reporter := joberrors.NewReporter(l.OutputDir(), joberrors.ExitPolicy(settings.ExitPolicy), joberrors.WithLogger(logger))

	// Signals are forwarded to the child by the spawner, so the context is
	// not cancelled on SIGTERM; cancelling it would kill the child outright.
	ctx := context.Background()

	factory := app.NewProviderFactory(settings, logger)
	spawner, err := factory.GetSpawner(ctx)
	if err != nil {
		reporter.ReportAndExit(joberrors.NewConfigError("Unable to initialise the runtime.", err))
		return
	}
	f, err := factory.GetFetcher("")
	if err != nil {
		reporter.ReportAndExit(joberrors.NewConfigError("Unable to initialise the code fetcher.", err))
		return
	}

	a := app.New(settings,
		app.WithSpawner(spawner),
		app.WithFetcher(f),
		app.WithLogger(logger),
	)
	reporter.ReportAndExit(a.Run(ctx))
}

// mustLoadSettings loads the settings and installs the logger. Invalid settings
// leave no trustworthy output directory, so they are only printed.
func mustLoadSettings() (*config.Settings, *slog.Logger) {
	settings, err := config.LoadSettings(v, configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stderr, settings.LogLevel, settings.LogFormat)
	slog.SetDefault(logger)
	return settings, logger
}

// bindFlags exposes every setting as a persistent flag. Flags win over
// JOBENTRY_* variables, which win over the config file.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a settings file (yaml, json or toml)")
	flags.String("ml-root", v.GetString("ml_root"), "Mounted job root holding input and output")
	flags.String("braket-root", v.GetString("braket_root"), "Path linked to the ML root that holds the code tree")
	flags.String("interpreter", v.GetString("interpreter"), "Interpreter used to run the entry point")
	flags.String("runtime", v.GetString("runtime"), "Where customer code runs: process or docker")
	flags.String("docker-image", v.GetString("docker_image"), "Image for the docker runtime")
	flags.String("exit-policy", v.GetString("exit_policy"), "Exit status after a reported failure: zero or propagate")
	flags.String("fetch-policy", v.GetString("fetch_policy"), "Existing downloads: skip-existing or always")
	flags.String("s3-endpoint", v.GetString("s3_endpoint"), "S3 endpoint host")
	flags.String("s3-region", v.GetString("s3_region"), "S3 region")
	flags.Bool("s3-insecure", v.GetBool("s3_insecure"), "Use plain HTTP for the S3 endpoint")
	flags.Bool("skip-symlink", v.GetBool("skip_symlink"), "Do not link the braket root to the ML root")
	flags.String("metrics-file", v.GetString("metrics_file"), "Write run metrics to this textfile")
	flags.String("log-level", v.GetString("log_level"), "Log level: debug, info, warn or error")
	flags.String("log-format", v.GetString("log_format"), "Log format: text or json")

	for _, name := range []string{
		"ml-root", "braket-root", "interpreter", "runtime", "docker-image", "exit-policy",
		"fetch-policy", "s3-endpoint", "s3-region", "s3-insecure", "skip-symlink",
		"metrics-file", "log-level", "log-format",
	} {
		if err := v.BindPFlag(config.FlagKey(name), flags.Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}
}

func init() {
	bindFlags(rootCmd, v)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
