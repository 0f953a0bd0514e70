package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common"
	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		log.Warn().Str("key", key).Str("value", s).Msg("Ignoring invalid unsigned integer")
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Warn().Str("key", key).Str("value", s).Msg("Ignoring invalid integer")
		return
	}
	*result = n
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		log.Warn().Str("key", key).Str("value", s).Msg("Ignoring invalid boolean")
		return
	}
	*result = b
}

// loadEnvDuration accepts Go duration strings ("30s", "1m") or a bare number of seconds.
func loadEnvDuration(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		*result = d
		return
	}
	if n, err := strconv.Atoi(s); err == nil {
		*result = time.Duration(n) * time.Second
		return
	}
	log.Warn().Str("key", key).Str("value", s).Msg("Ignoring invalid duration")
}

/* Run mode */

type RunMode string

const (
	RunModeOnce  RunMode = "once"
	RunModeServe RunMode = "serve"
)

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

// Enabled reports whether a Postgres host was configured.
func (p pgSqlConfig) Enabled() bool {
	return p.Host != ""
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "",
		Port:     5432,
		Database: "tesauro",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

type natsConfig struct {
	Host             string
	Port             uint
	Username         string
	Password         string
	JetStreamEnabled bool
	Stream           string
}

func (c *natsConfig) loadFromEnv() {
	loadEnvString("NATS_HOST", &c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	c.Username = getEnv("NATS_USER", c.Username)
	c.Password = getEnv("NATS_PASSWORD", c.Password)
	loadEnvBool("NATS_JETSTREAM_ENABLED", &c.JetStreamEnabled)
	loadEnvString("NATS_STREAM", &c.Stream)
}

func (c natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func (c natsConfig) Enabled() bool {
	return c.Host != ""
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:             "",
		Port:             4222,
		Username:         "",
		Password:         "",
		JetStreamEnabled: true,
		Stream:           "TESAURO",
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvInt("REDIS_DB", &r.DB)
}

func (r redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r redisConfig) Enabled() bool {
	return r.Host != ""
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
	Prefix          string
}

func (g *GCSConfig) loadFromEnv() {
	loadEnvString("GCS_PROJECT_ID", &g.ProjectID)
	loadEnvString("GCS_CREDENTIALS_FILE", &g.CredentialsFile)
	loadEnvString("GCS_STORAGE_BUCKET", &g.Bucket)
	loadEnvString("GCS_PREFIX", &g.Prefix)
}

func (g GCSConfig) Enabled() bool {
	return g.Bucket != ""
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
		Prefix:          "tesauro",
	}
}

/* Browser Configuration */

type BrowserConfig struct {
	Headless     bool
	Bin          string
	ControlURL   string
	WindowWidth  int
	WindowHeight int
}

func (b *BrowserConfig) loadFromEnv() {
	loadEnvBool("BROWSER_HEADLESS", &b.Headless)
	loadEnvString("BROWSER_BIN", &b.Bin)
	loadEnvString("BROWSER_CONTROL_URL", &b.ControlURL)
}

func defaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

/* Tesauro scrape Configuration */

type TesauroConfig struct {
	URL               string
	Pages             int
	MinCards          int
	PageTimeout       time.Duration
	PollInterval      time.Duration
	ReadRetries       int
	RetryDelay        time.Duration
	DetailPanel       bool
	DownloadDocuments bool
	DocumentTimeout   time.Duration
	DocumentSettle    time.Duration
	SaveAnalysis      bool
	PageDelay         time.Duration
	RunTimeout        time.Duration
	OutputFile        string
	DownloadsDir      string
}

func (t *TesauroConfig) loadFromEnv() {
	loadEnvString("TESAURO_URL", &t.URL)
	loadEnvInt("TESAURO_PAGES", &t.Pages)
	loadEnvInt("TESAURO_MIN_CARDS", &t.MinCards)
	loadEnvDuration("TESAURO_PAGE_TIMEOUT", &t.PageTimeout)
	loadEnvDuration("TESAURO_POLL_INTERVAL", &t.PollInterval)
	loadEnvInt("TESAURO_READ_RETRIES", &t.ReadRetries)
	loadEnvDuration("TESAURO_RETRY_DELAY", &t.RetryDelay)
	loadEnvBool("TESAURO_DETAIL_PANEL", &t.DetailPanel)
	loadEnvBool("TESAURO_DOWNLOAD_DOCUMENTS", &t.DownloadDocuments)
	loadEnvDuration("TESAURO_DOCUMENT_TIMEOUT", &t.DocumentTimeout)
	loadEnvDuration("TESAURO_DOCUMENT_SETTLE", &t.DocumentSettle)
	loadEnvBool("TESAURO_SAVE_ANALYSIS", &t.SaveAnalysis)
	loadEnvDuration("TESAURO_PAGE_DELAY", &t.PageDelay)
	loadEnvDuration("TESAURO_RUN_TIMEOUT", &t.RunTimeout)
	loadEnvString("OUTPUT_FILE", &t.OutputFile)
	loadEnvString("DOWNLOADS_DIR", &t.DownloadsDir)
}

// Validate rejects values the scrape loop cannot work with.
func (t TesauroConfig) Validate() error {
	switch {
	case t.URL == "":
		return fmt.Errorf("%w: TESAURO_URL must not be empty", common.ErrInvalidConfig)
	case t.Pages < 1:
		return fmt.Errorf("%w: TESAURO_PAGES must be at least 1, got %d", common.ErrInvalidConfig, t.Pages)
	case t.MinCards < 1:
		return fmt.Errorf("%w: TESAURO_MIN_CARDS must be at least 1, got %d", common.ErrInvalidConfig, t.MinCards)
	case t.ReadRetries < 1:
		return fmt.Errorf("%w: TESAURO_READ_RETRIES must be at least 1, got %d", common.ErrInvalidConfig, t.ReadRetries)
	case t.PageTimeout <= 0 || t.PollInterval <= 0 || t.DocumentTimeout <= 0 || t.RunTimeout <= 0:
		return fmt.Errorf("%w: timeouts and poll interval must be positive", common.ErrInvalidConfig)
	case t.OutputFile == "":
		return fmt.Errorf("%w: OUTPUT_FILE must not be empty", common.ErrInvalidConfig)
	case t.DownloadDocuments && t.DownloadsDir == "":
		return fmt.Errorf("%w: DOWNLOADS_DIR must be set when document download is enabled", common.ErrInvalidConfig)
	}
	return nil
}

func defaultTesauroConfig() TesauroConfig {
	return TesauroConfig{
		URL:               "https://tesauro.supersociedades.gov.co/results#/",
		Pages:             30,
		MinCards:          5,
		PageTimeout:       30 * time.Second,
		PollInterval:      time.Second,
		ReadRetries:       3,
		RetryDelay:        time.Second,
		DetailPanel:       true,
		DownloadDocuments: false,
		DocumentTimeout:   30 * time.Second,
		DocumentSettle:    8 * time.Second,
		SaveAnalysis:      false,
		PageDelay:         time.Second,
		RunTimeout:        6 * time.Hour,
		OutputFile:        "results.json",
		DownloadsDir:      "downloads",
	}
}

type logConfig struct {
	Level  string
	Format string
}

func (l *logConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("LOG_FORMAT", &l.Format)
}

func defaultLogConfig() logConfig {
	return logConfig{
		Level:  "info",
		Format: "console",
	}
}

type Config struct {
	Mode    RunMode
	Listen  listenConfig
	Log     logConfig
	PgSql   pgSqlConfig
	Nats    natsConfig
	Redis   redisConfig
	GCS     GCSConfig
	Browser BrowserConfig
	Tesauro TesauroConfig
}

func (c *Config) LoadFromEnv() {
	mode := string(c.Mode)
	loadEnvString("RUN_MODE", &mode)
	c.Mode = RunMode(strings.ToLower(strings.TrimSpace(mode)))

	c.Listen.loadFromEnv()
	c.Log.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Browser.loadFromEnv()
	c.Tesauro.loadFromEnv()
}

// Validate checks the loaded configuration as a whole.
func (c Config) Validate() error {
	if c.Mode != RunModeOnce && c.Mode != RunModeServe {
		return fmt.Errorf("%w: unknown RUN_MODE %q", common.ErrInvalidConfig, c.Mode)
	}
	return c.Tesauro.Validate()
}

func DefaultConfig() Config {
	return Config{
		Mode:    RunModeOnce,
		Listen:  defaultListenConfig(),
		Log:     defaultLogConfig(),
		PgSql:   defaultPgSql(),
		Nats:    defaultNatsConfig(),
		Redis:   defaultRedisConfig(),
		GCS:     defaultGcsConfig(),
		Browser: defaultBrowserConfig(),
		Tesauro: defaultTesauroConfig(),
	}
}
