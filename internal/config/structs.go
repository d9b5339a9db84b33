//nolint:lll
package config

// Config represents the complete configuration for the codescan application.
// It includes settings for all commands (serve, scan, live) and supports
// loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Barcode BarcodeConfig `mapstructure:"barcode" yaml:"barcode" json:"barcode"`
	Objects ObjectsConfig `mapstructure:"objects" yaml:"objects" json:"objects"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch configuration (for scan command)
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Camera viewer (for live command)
	Live LiveConfig `mapstructure:"live" yaml:"live" json:"live"`
}

// BarcodeConfig contains multi-pass decoder settings.
type BarcodeConfig struct {
	Disabled       bool     `mapstructure:"disabled" yaml:"disabled" json:"disabled"`
	Formats        []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder      bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Dedup          bool     `mapstructure:"dedup" yaml:"dedup" json:"dedup"`
	ParallelPasses bool     `mapstructure:"parallel_passes" yaml:"parallel_passes" json:"parallel_passes"`
}

// ObjectsConfig contains object detection settings.
type ObjectsConfig struct {
	Backend      string  `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelPath    string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LabelsPath   string  `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	LibraryPath  string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	InputSize    int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	Confidence   float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	IoU          float64 `mapstructure:"iou" yaml:"iou" json:"iou"`
	NumThreads   int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	ObjectboxURL string  `mapstructure:"objectbox_url" yaml:"objectbox_url" json:"objectbox_url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool            `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains scan settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	Pages           string   `mapstructure:"pages" yaml:"pages" json:"pages"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
}

// LiveConfig contains camera viewer settings.
type LiveConfig struct {
	Device      int     `mapstructure:"device" yaml:"device" json:"device"`
	Confidence  float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	CapturePath string  `mapstructure:"capture_path" yaml:"capture_path" json:"capture_path"`
}
