// Package config loads and validates crawler configuration via Viper.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// Browser engines.
const (
	EngineColly    = "colly"
	EngineChromedp = "chromedp"
)

// Checkpoint backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Report sinks.
const (
	SinkXLSX     = "xlsx"
	SinkPostgres = "postgres"
)

// DefaultUserAgent is a desktop Chrome identity.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config captures every knob of a crawl job.
type Config struct {
	Logging    LoggingConfig     `mapstructure:"logging"`
	Units      UnitsConfig       `mapstructure:"units"`
	Crawler    CrawlerConfig     `mapstructure:"crawler"`
	Browser    BrowserConfig     `mapstructure:"browser"`
	Selectors  crawler.Selectors `mapstructure:"selectors"`
	Extract    ExtractConfig     `mapstructure:"extract"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint"`
	Report     ReportConfig      `mapstructure:"report"`
	Progress   ProgressConfig    `mapstructure:"progress"`
	Notify     NotifyConfig      `mapstructure:"notify"`
	Telemetry  TelemetryConfig   `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// UnitsConfig selects the base names. NamesFile, when set, replaces Names with
// one name per line.
type UnitsConfig struct {
	Names        []string `mapstructure:"names"`
	NamesFile    string   `mapstructure:"names_file"`
	FoldVariants bool     `mapstructure:"fold_variants"`
}

// CrawlerConfig governs the worker pool and pacing.
type CrawlerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	MaxPages          int           `mapstructure:"max_pages"`
	Concurrency       int           `mapstructure:"concurrency"`
	PaceMin           time.Duration `mapstructure:"pace_min"`
	PaceMax           time.Duration `mapstructure:"pace_max"`
	UnitPauseMin      time.Duration `mapstructure:"unit_pause_min"`
	UnitPauseMax      time.Duration `mapstructure:"unit_pause_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
}

// BrowserConfig selects and tunes the browser engine.
type BrowserConfig struct {
	Engine       string        `mapstructure:"engine"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	Headless     bool          `mapstructure:"headless"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	WindowWidth  int           `mapstructure:"window_width"`
	WindowHeight int           `mapstructure:"window_height"`
}

// ExtractConfig holds the extraction policy.
type ExtractConfig struct {
	RequireBirthDate bool `mapstructure:"require_birth_date"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// ReportConfig controls aggregation output.
type ReportConfig struct {
	Dir              string   `mapstructure:"dir"`
	Prefix           string   `mapstructure:"prefix"`
	InterimEvery     int      `mapstructure:"interim_every"`
	Sinks            []string `mapstructure:"sinks"`
	PostgresDSN      string   `mapstructure:"postgres_dsn"`
	OfficerTable     string   `mapstructure:"officer_table"`
	AppointmentTable string   `mapstructure:"appointment_table"`
	Timezone         string   `mapstructure:"timezone"`
}

// ProgressConfig controls progress sinks.
type ProgressConfig struct {
	LogEvents   bool   `mapstructure:"log_events"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// NotifyConfig enables Pub/Sub notifications when Topic is set.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig exports trace spans when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPProtocol string `mapstructure:"otlp_protocol"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Load builds a Config from the optional file at path and OFFICERS_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OFFICERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("units.names", crawler.DefaultNames)
	v.SetDefault("units.fold_variants", true)

	v.SetDefault("crawler.base_url", crawler.DefaultBaseURL)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.pace_min", time.Second)
	v.SetDefault("crawler.pace_max", 2*time.Second)
	v.SetDefault("crawler.unit_pause_min", 2*time.Second)
	v.SetDefault("crawler.unit_pause_max", 3*time.Second)
	v.SetDefault("crawler.requests_per_second", 1.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.respect_robots", false)

	v.SetDefault("browser.engine", EngineColly)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_parallel", 0)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	defaults := crawler.DefaultSelectors()
	v.SetDefault("selectors.search_path", defaults.SearchPath)
	v.SetDefault("selectors.no_results", defaults.NoResults)
	v.SetDefault("selectors.officer_link", defaults.OfficerLink)
	v.SetDefault("selectors.next_page", defaults.NextPage)
	v.SetDefault("selectors.officer_name", defaults.OfficerName)
	v.SetDefault("selectors.birth_date", defaults.BirthDate)
	v.SetDefault("selectors.nationality", defaults.Nationality)
	v.SetDefault("selectors.appointment_block", defaults.AppointmentBlock)
	v.SetDefault("selectors.company_link", defaults.CompanyLink)
	v.SetDefault("selectors.company_status", defaults.CompanyStatus)
	v.SetDefault("selectors.address", defaults.Address)
	v.SetDefault("selectors.role", defaults.Role)
	v.SetDefault("selectors.appointed_on", defaults.AppointedOn)
	v.SetDefault("selectors.governing_law", defaults.GoverningLaw)
	v.SetDefault("selectors.legal_form", defaults.LegalForm)

	v.SetDefault("extract.require_birth_date", false)

	v.SetDefault("checkpoint.backend", BackendLocal)
	v.SetDefault("checkpoint.dir", ".")
	v.SetDefault("checkpoint.gcs_prefix", "checkpoints")

	v.SetDefault("report.dir", ".")
	v.SetDefault("report.prefix", "turkish_officers")
	v.SetDefault("report.interim_every", 5)
	v.SetDefault("report.sinks", []string{SinkXLSX})
	v.SetDefault("report.officer_table", "officer_summary")
	v.SetDefault("report.appointment_table", "appointment_detail")
	v.SetDefault("report.timezone", "Local")

	v.SetDefault("progress.log_events", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_protocol", "grpc")
	v.SetDefault("telemetry.otlp_insecure", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Units.Names) == 0 && c.Units.NamesFile == "" {
		return fmt.Errorf("units.names or units.names_file is required")
	}
	if err := c.Crawler.validate(); err != nil {
		return err
	}
	if err := c.Browser.validate(); err != nil {
		return err
	}
	switch c.Checkpoint.Backend {
	case BackendLocal:
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Checkpoint.GCSBucket == "" {
			return fmt.Errorf("checkpoint.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be %q or %q", BackendLocal, BackendGCS)
	}
	if err := c.Report.validate(); err != nil {
		return err
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id is required when notify.topic is set")
	}
	if c.Telemetry.OTLPEndpoint != "" && c.Telemetry.OTLPProtocol != "grpc" && c.Telemetry.OTLPProtocol != "http" {
		return fmt.Errorf("telemetry.otlp_protocol must be \"grpc\" or \"http\"")
	}
	return nil
}

func (c CrawlerConfig) validate() error {
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("crawler.base_url must be an absolute URL")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.PaceMin < 0 || c.PaceMax < c.PaceMin {
		return fmt.Errorf("crawler.pace_min/pace_max must satisfy 0 <= min <= max")
	}
	if c.UnitPauseMin < 0 || c.UnitPauseMax < c.UnitPauseMin {
		return fmt.Errorf("crawler.unit_pause_min/unit_pause_max must satisfy 0 <= min <= max")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	return nil
}

func (c BrowserConfig) validate() error {
	switch c.Engine {
	case EngineColly, EngineChromedp:
	default:
		return fmt.Errorf("browser.engine must be %q or %q", EngineColly, EngineChromedp)
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("browser.max_parallel must be >= 0")
	}
	return nil
}

func (c ReportConfig) validate() error {
	if c.Prefix == "" {
		return fmt.Errorf("report.prefix is required")
	}
	if c.InterimEvery < 0 {
		return fmt.Errorf("report.interim_every must be >= 0")
	}
	for _, sink := range c.Sinks {
		if sink != SinkXLSX && sink != SinkPostgres {
			return fmt.Errorf("report.sinks: unknown sink %q", sink)
		}
	}
	if slices.Contains(c.Sinks, SinkPostgres) && c.PostgresDSN == "" {
		return fmt.Errorf("report.postgres_dsn is required for the postgres sink")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

// CurrentDestination names the snapshot of data collected before the run.
func (c ReportConfig) CurrentDestination() string { return c.Prefix + "_current" }

// FinalDestination names the end-of-run snapshot.
func (c ReportConfig) FinalDestination() string { return c.Prefix + "_final" }

// CombinedDestination names the stand-alone aggregation output.
func (c ReportConfig) CombinedDestination() string { return c.Prefix + "_combined" }

// InterimDestination names the snapshot taken after n completed units.
func (c ReportConfig) InterimDestination(n int) string {
	return fmt.Sprintf("%s_interim_%d_units", c.Prefix, n)
}

// BaseNames returns the configured names, reading NamesFile when set. Blank
// lines and lines starting with # are skipped.
func (c UnitsConfig) BaseNames() ([]string, error) {
	if c.NamesFile == "" {
		return c.Names, nil
	}
	data, err := os.ReadFile(c.NamesFile)
	if err != nil {
		return nil, fmt.Errorf("read units.names_file: %w", err)
	}
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan units.names_file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("units.names_file %s lists no names", c.NamesFile)
	}
	return names, nil
}
