package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values match the analysis service's own defaults where applicable.
const (
	// DefaultServerURL is the standard analysis service address.
	// Port 8765 is the service's default listen port. We use 127.0.0.1
	// instead of localhost to avoid DNS resolution overhead and potential
	// issues with IPv6 resolution on some systems.
	DefaultServerURL = "http://127.0.0.1:8765"

	// DefaultServerStartupTimeout is the maximum time to wait for a
	// launched analysis service to become ready. Model servers import
	// heavy numeric stacks on startup, so one minute is a realistic
	// ceiling on modest hardware.
	DefaultServerStartupTimeout = time.Minute

	// DefaultConcurrency is the number of concurrent audits when
	// processing multiple datasets. The analysis service holds one
	// trained model at a time, so concurrent audits against a single
	// service corrupt each other's state.
	DefaultConcurrency = 1

	// AppName is the application name used for XDG directory paths.
	AppName = "fairscan"
)

// Report output formats accepted by the --format flag.
const (
	// FormatText is the human-readable terminal dashboard.
	FormatText = "text"

	// FormatJSON is machine-readable JSON output.
	FormatJSON = "json"

	// FormatMarkdown is GitHub Flavored Markdown output.
	FormatMarkdown = "markdown"
)

// Config holds all configuration options for fairscan.
// This struct is designed to be populated from CLI flags and the config
// file and passed through the application via dependency injection
// rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., ServerConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// ServerURL is the analysis service base URL.
	// All six audit stages run against this address.
	ServerURL string

	// ServerCommand is the command that launches the analysis service
	// when it is not already reachable. Empty means never launch; the
	// audit fails with a connection error instead.
	ServerCommand string

	// ServerArgs are the arguments passed to ServerCommand.
	ServerArgs []string

	// ServerStartupTimeout is the maximum time to wait for a launched
	// analysis service to answer the liveness probe.
	ServerStartupTimeout time.Duration

	// Datasets is the list of CSV files to audit.
	// Must contain at least one path.
	Datasets []string

	// LabelField is the prediction target column.
	// May come from a flag or from the dataset's audit profile.
	LabelField string

	// ProtectedFields are the sensitive attribute columns.
	ProtectedFields []string

	// HiddenLayerSizes is the network architecture, outermost first.
	// Empty means the service's default architecture.
	HiddenLayerSizes []int

	// EpochCount is the number of training epochs.
	// Zero means the service default.
	EpochCount int

	// QidThreshold is the QID value in bits above which a sample is
	// counted as discriminatory. Zero means the service default.
	QidThreshold float64

	// Format selects the report output format.
	// One of FormatText, FormatJSON, or FormatMarkdown.
	Format string

	// OutputFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	OutputFile string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// Concurrency is the number of concurrent audits when processing
	// multiple datasets. Values above one only make sense when the
	// audits target separate analysis service instances.
	Concurrency int

	// HistoryDir is the directory path for the run-history database.
	// Defaults to the XDG data directory (~/.local/share/fairscan on Linux).
	HistoryDir string

	// SaveHistory indicates whether completed runs are stored in the
	// history database. The --no-history flag clears it.
	SaveHistory bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .fairscan.yml in the current
	// directory and then for config.yml in the XDG config directory.
	ConfigFilePath string

	// Profiles holds per-dataset audit profiles loaded from the config
	// file. This is populated by LoadConfigFile and consulted when a
	// run omits the label or protected columns.
	Profiles *File
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., the server URL
// and startup timeout). This also serves as documentation of what the
// defaults are.
func NewConfig() *Config {
	return &Config{
		ServerURL:            DefaultServerURL,
		ServerStartupTimeout: DefaultServerStartupTimeout,
		Concurrency:          DefaultConcurrency,
		Format:               FormatText,
		HistoryDir:           XDGDataDir(),
		SaveHistory:          true,
	}
}

// XDGDataDir returns the XDG data directory for fairscan.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/fairscan
// On macOS: ~/Library/Application Support/fairscan
// On Windows: %LOCALAPPDATA%\fairscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for fairscan.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.config/fairscan
// On macOS: ~/Library/Application Support/fairscan
// On Windows: %APPDATA%\fairscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any audit begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return ErrNoDataset
	}

	if c.ServerURL == "" {
		return ErrNoServerURL
	}

	switch c.Format {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return ErrInvalidFormat
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.ServerStartupTimeout <= 0 {
		return ErrInvalidStartupTimeout
	}

	if c.QidThreshold < 0 {
		return ErrInvalidQidThreshold
	}

	if c.EpochCount < 0 {
		return ErrInvalidEpochCount
	}

	return nil
}
