package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/revgate/internal/authcache"
	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "revgate",
	Short: "Score code review comments and gate approvals on reviewer access",
	Long: `revgate classifies review comments by severity, scores review quality,
and only credits an approval when the reviewer is verified as a collaborator
with write access on the repository.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if dataStore != nil {
			_ = dataStore.Close()
		}
		os.Exit(1)
	}
	if dataStore != nil {
		_ = dataStore.Close()
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/revgate/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "revgate")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The conventional GitHub variable works as a fallback for the token.
	_ = viper.BindEnv("github.token", "REVGATE_GITHUB_TOKEN", "GITHUB_TOKEN")

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "revgate")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "revgate.db"))
	viper.SetDefault("github.api_url", reviewer.DefaultAPIURL)
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.timeout", "30s")
	viper.SetDefault("github.rate_limit", 10)
	viper.SetDefault("auth.cache_ttl", authcache.DefaultTTL.String())
	viper.SetDefault("auth.cache_size", authcache.DefaultCapacity)
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version/classify commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(cmdContext()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// cmdContext returns the root command's context, which is unset outside Execute.
func cmdContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newVerifier builds a reviewer verifier from configuration. Lookups are
// audited to auditor when it is non-nil.
func newVerifier(auditor reviewer.Auditor) (*reviewer.Verifier, error) {
	perms, err := reviewer.NewGitHubPermissions(reviewer.GitHubConfig{
		APIURL:    viper.GetString("github.api_url"),
		Timeout:   viper.GetDuration("github.timeout"),
		RateLimit: viper.GetFloat64("github.rate_limit"),
	})
	if err != nil {
		return nil, err
	}

	cache := authcache.New(
		authcache.WithTTL(viper.GetDuration("auth.cache_ttl")),
		authcache.WithCapacity(viper.GetInt("auth.cache_size")),
	)

	opts := []reviewer.Option{reviewer.WithLogger(slog.Default())}
	if auditor != nil {
		opts = append(opts, reviewer.WithAuditor(auditor))
	}
	return reviewer.NewVerifier(perms, cache, opts...), nil
}

// githubToken returns the configured credential for reviewer lookups.
func githubToken() string {
	return viper.GetString("github.token")
}

// gitClient is replaceable in tests.
var gitClient git.Client = git.NewClient()

// resolveRepo returns flag when set, otherwise the owner/name of the origin
// remote of the checkout in the working directory.
func resolveRepo(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	repo, err := git.DetectRepo(gitClient, ".")
	if err != nil {
		return "", fmt.Errorf("--repo not given and %w", err)
	}
	ui.VerboseLog("Using repository %s from origin remote", repo)
	return repo, nil
}

// splitRepo parses an owner/name argument.
func splitRepo(full string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", full)
	}
	return owner, name, nil
}
