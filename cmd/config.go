package cmd

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "revgate"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage revgate configuration.

Running bare 'revgate config' is the same as 'revgate config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check effective configuration for invalid values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configValidateRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate renders config.yaml with comments. The token is never
// written to the file.
const configTemplate = `# revgate configuration
# See: revgate config show (for effective values and sources)

# State/data directory (default: ~/.config/revgate)
# state_dir: {{ .StateDir }}

# SQLite database path for the review log and audit trail
# db_path: {{ .DBPath }}

# GitHub collaborator lookups
github:
  # REST endpoint; set for GitHub Enterprise (e.g. https://ghe.example.com/api/v3/)
  api_url: "{{ .GitHubAPIURL }}"

  # Per-request timeout (default: 30s)
  timeout: {{ .GitHubTimeout }}

  # Outbound lookups per second, 0 disables throttling (default: 10)
  rate_limit: {{ .GitHubRateLimit }}

  # Token: set REVGATE_GITHUB_TOKEN or GITHUB_TOKEN rather than storing it here

# Reviewer authorization cache
auth:
  # How long a lookup result is reused (default: 5m)
  cache_ttl: {{ .AuthCacheTTL }}

  # Maximum cached reviewers before the oldest is evicted (default: 1000)
  cache_size: {{ .AuthCacheSize }}

# REST API port for 'revgate serve' (default: 8080)
port: {{ .Port }}
`

type configTemplateData struct {
	StateDir        string
	DBPath          string
	GitHubAPIURL    string
	GitHubTimeout   string
	GitHubRateLimit float64
	AuthCacheTTL    string
	AuthCacheSize   int
	Port            int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data := configTemplateData{
		StateDir:        viper.GetString("state_dir"),
		DBPath:          viper.GetString("db_path"),
		GitHubAPIURL:    viper.GetString("github.api_url"),
		GitHubTimeout:   viper.GetDuration("github.timeout").String(),
		GitHubRateLimit: viper.GetFloat64("github.rate_limit"),
		AuthCacheTTL:    viper.GetDuration("auth.cache_ttl").String(),
		AuthCacheSize:   viper.GetInt("auth.cache_size"),
		Port:            viper.GetInt("port"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// Owner-only; the file may hold a token.
	if err := os.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key     string
	EnvVars []string
	Secret  bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVars: []string{"REVGATE_STATE_DIR"}},
	{Key: "db_path", EnvVars: []string{"REVGATE_DB_PATH"}},
	{Key: "github.api_url", EnvVars: []string{"REVGATE_GITHUB_API_URL"}},
	{Key: "github.token", EnvVars: []string{"REVGATE_GITHUB_TOKEN", "GITHUB_TOKEN"}, Secret: true},
	{Key: "github.timeout", EnvVars: []string{"REVGATE_GITHUB_TIMEOUT"}},
	{Key: "github.rate_limit", EnvVars: []string{"REVGATE_GITHUB_RATE_LIMIT"}},
	{Key: "auth.cache_ttl", EnvVars: []string{"REVGATE_AUTH_CACHE_TTL"}},
	{Key: "auth.cache_size", EnvVars: []string{"REVGATE_AUTH_CACHE_SIZE"}},
	{Key: "port", EnvVars: []string{"REVGATE_PORT"}},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVars, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues returns the dotted keys set in the YAML file at path.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys records every leaf of m under its dotted path.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// maskSecret hides a credential for display.
func maskSecret(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "********"
}

// detectSource determines where a config value is coming from. Env vars are
// checked in precedence order.
func detectSource(key string, envVars []string, fileValues map[string]bool) string {
	for _, envVar := range envVars {
		if _, ok := os.LookupEnv(envVar); ok {
			return fmt.Sprintf("(env: %s)", envVar)
		}
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

// validateConfig reports every effective setting the server or verifier
// would reject or misbehave on.
func validateConfig() []string {
	var problems []string

	if raw := viper.GetString("github.api_url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("github.api_url: %q is not an absolute URL", raw))
		} else if u.Scheme != "https" && u.Scheme != "http" {
			problems = append(problems, fmt.Sprintf("github.api_url: unsupported scheme %q", u.Scheme))
		}
	}
	for _, key := range []string{"github.timeout", "auth.cache_ttl"} {
		d, err := time.ParseDuration(viper.GetString(key))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not a duration", key, viper.GetString(key)))
		} else if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s: must be positive", key))
		}
	}
	if viper.GetFloat64("github.rate_limit") < 0 {
		problems = append(problems, "github.rate_limit: must not be negative")
	}
	if viper.GetInt("auth.cache_size") <= 0 {
		problems = append(problems, "auth.cache_size: must be positive")
	}
	if port := viper.GetInt("port"); port <= 0 || port > 65535 {
		problems = append(problems, fmt.Sprintf("port: %d is out of range", port))
	}
	return problems
}

func configValidateRun() error {
	problems := validateConfig()
	for _, p := range problems {
		ui.Error("%s", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d invalid setting(s)", len(problems))
	}
	if githubToken() == "" {
		ui.Warning("No GitHub token configured; private repositories will verify as unauthorized")
	}
	ui.Success("Configuration is valid")
	return nil
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'revgate config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
