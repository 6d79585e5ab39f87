package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/projectvak/contract-pipeline/constants"
)

// MaxOrganizeKeys is the size of the GEMINI_API_KEY_<n> pool read from the environment.
const MaxOrganizeKeys = 21

// Config holds all application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Keys       KeysConfig       `yaml:"keys"`
	OCR        OCRConfig        `yaml:"ocr"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Notify     NotifyConfig     `yaml:"notify"`
	CRM        CRMConfig        `yaml:"crm"`
	Search     SearchConfig     `yaml:"search"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// LogConfig selects level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// StorageConfig selects the document store and its layout.
type StorageConfig struct {
	Backend           string      `yaml:"backend"` // local | minio
	LocalRoot         string      `yaml:"local_root"`
	ScanRoot          string      `yaml:"scan_root"`
	OrganizedPrefix   string      `yaml:"organized_prefix"`
	ExcludeFolders    []string    `yaml:"exclude_folders"`
	RentalKeywords    []string    `yaml:"rental_keywords"`
	ProcessingLogPath string      `yaml:"processing_log_path"`
	PageSize          int         `yaml:"page_size"`
	Minio             MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible object store settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // gemini | openai
	BaseURL         string        `yaml:"base_url"` // empty: provider default
	Model           string        `yaml:"model"`    // empty: select from the listed models
	AnalyzeAPIKey   string        `yaml:"analyze_api_key"`
	OrganizeAPIKeys []string      `yaml:"organize_api_keys"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"` // transport and 5xx only
}

// KeysConfig configures the organize key rotator.
type KeysConfig struct {
	Store      string        `yaml:"store"` // file | database
	StatePath  string        `yaml:"state_path"`
	DailyLimit int           `yaml:"daily_limit"`
	Window     time.Duration `yaml:"window"`
}

// OCRConfig holds text extraction configuration
type OCRConfig struct {
	Pdftoppm       string `yaml:"pdftoppm"`
	DPI            int    `yaml:"dpi"`
	InitialPages   int    `yaml:"initial_pages"`
	MaxPages       int    `yaml:"max_pages"`
	OCRPages       int    `yaml:"ocr_pages"`
	MinTextLength  int    `yaml:"min_text_length"`
	MinOCRLength   int    `yaml:"min_ocr_length"`
	ContinueBelow  int    `yaml:"continue_below"`
	CoverPageLimit int    `yaml:"cover_page_limit"`
	TargetLength   int    `yaml:"target_length"`
}

// PipelineConfig holds worker loop timing, batching and text windows.
type PipelineConfig struct {
	CheckInterval        time.Duration `yaml:"check_interval"`
	BatchSize            int           `yaml:"batch_size"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryWait            time.Duration `yaml:"retry_wait"`
	RateLimitWait        time.Duration `yaml:"rate_limit_wait"`
	QuotaCooldown        time.Duration `yaml:"quota_cooldown"`
	StageDelay           time.Duration `yaml:"stage_delay"`
	StageJSONRetryWait   time.Duration `yaml:"stage_json_retry_wait"`
	ContractDelay        time.Duration `yaml:"contract_delay"`
	OrganizeDelay        time.Duration `yaml:"organize_delay"`
	ErrorBackoff         time.Duration `yaml:"error_backoff"`
	TextSampleSize       int           `yaml:"text_sample_size"`
	Chunk1Size           int           `yaml:"chunk1_size"`
	Chunk2Start          int           `yaml:"chunk2_start"`
	Chunk2End            int           `yaml:"chunk2_end"`
	MinTextForProcessing int           `yaml:"min_text_for_processing"`
	MinTextForAnalysis   int           `yaml:"min_text_for_analysis"`
	SummarySampleSize    int           `yaml:"summary_sample_size"`
	OrganizedHistory     string        `yaml:"organized_history"`
	AnalyzedHistory      string        `yaml:"analyzed_history"`
	FolderCache          string        `yaml:"folder_cache"`
}

// ConfidenceConfig holds the scoring weights. They were tuned by trial and
// are deliberately configurable.
type ConfidenceConfig struct {
	TypeVerified     float64 `yaml:"type_verified"`
	Critical         float64 `yaml:"critical"`
	Completeness     float64 `yaml:"completeness"`
	LongTextBonus    float64 `yaml:"long_text_bonus"`
	MidTextBonus     float64 `yaml:"mid_text_bonus"`
	ShortTextPenalty float64 `yaml:"short_text_penalty"`
	ShortTextLen     int     `yaml:"short_text_len"`
	LongTextLen      int     `yaml:"long_text_len"`
	Target           float64 `yaml:"target"`
}

// NotifyConfig holds SMTP settings. An empty host disables email.
type NotifyConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// CRMConfig holds the optional CRM push endpoint.
type CRMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	MinScore float64       `yaml:"min_score"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig holds the full-text index location. Empty disables indexing.
type SearchConfig struct {
	IndexPath string `yaml:"index_path"`
}

// IngestConfig holds the optional local inbox. Files dropped there are
// imported into the scan root. Empty disables the inbox.
type IngestConfig struct {
	InboxDir string        `yaml:"inbox_dir"`
	Workers  int           `yaml:"workers"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the configuration used when no file or env is present.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     5 * time.Second,
		},
		Server: ServerConfig{GRPCAddr: ":8080"},
		Storage: StorageConfig{
			Backend:           "local",
			LocalRoot:         "./data",
			ScanRoot:          "/",
			OrganizedPrefix:   constants.OrganizedPrefix,
			ExcludeFolders:    append([]string(nil), constants.ExcludeFolders...),
			RentalKeywords:    append([]string(nil), constants.RentalKeywords...),
			ProcessingLogPath: constants.ProcessingLog,
			PageSize:          500,
		},
		LLM: LLMConfig{
			Provider:   "gemini",
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
		Keys: KeysConfig{
			Store:      "file",
			StatePath:  "gemini_organize_key_state.json",
			DailyLimit: 15,
			Window:     24 * time.Hour,
		},
		OCR: OCRConfig{
			Pdftoppm:       "pdftoppm",
			DPI:            200,
			InitialPages:   5,
			MaxPages:       15,
			OCRPages:       3,
			MinTextLength:  200,
			MinOCRLength:   100,
			ContinueBelow:  500,
			CoverPageLimit: 1000,
			TargetLength:   1000,
		},
		Pipeline: PipelineConfig{
			CheckInterval:        20 * time.Second,
			BatchSize:            5,
			MaxRetries:           3,
			RetryWait:            15 * time.Second,
			RateLimitWait:        90 * time.Second,
			QuotaCooldown:        time.Hour,
			StageDelay:           12 * time.Second,
			StageJSONRetryWait:   3 * time.Second,
			ContractDelay:        15 * time.Second,
			OrganizeDelay:        5 * time.Second,
			ErrorBackoff:         60 * time.Second,
			TextSampleSize:       3500,
			Chunk1Size:           20000,
			Chunk2Start:          15000,
			Chunk2End:            35000,
			MinTextForProcessing: 30,
			MinTextForAnalysis:   50,
			SummarySampleSize:    3000,
			OrganizedHistory:     "organized_history.txt",
			AnalyzedHistory:      "analyzed_docs.txt",
			FolderCache:          "folder_structure.json",
		},
		Confidence: ConfidenceConfig{
			TypeVerified:     20,
			Critical:         40,
			Completeness:     30,
			LongTextBonus:    10,
			MidTextBonus:     5,
			ShortTextPenalty: 5,
			ShortTextLen:     500,
			LongTextLen:      2000,
			Target:           95,
		},
		Notify: NotifyConfig{SMTPPort: 587},
		CRM:    CRMConfig{MinScore: 95, Timeout: 30 * time.Second},
		Ingest: IngestConfig{Workers: 2, Debounce: 2 * time.Second},
	}
}

// LoadConfig reads the YAML file at path (a missing file means defaults)
// and then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, NewAppError("CONFIG_ERROR", "parse "+path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.LocalRoot = getEnv("STORAGE_ROOT", c.Storage.LocalRoot)
	c.Storage.ScanRoot = getEnv("SCAN_ROOT", c.Storage.ScanRoot)
	c.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Minio.Endpoint)
	c.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.Minio.AccessKey)
	c.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.Minio.SecretKey)
	c.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", c.Storage.Minio.Bucket)
	c.Storage.Minio.UseSSL = getEnvAsBool("MINIO_USE_SSL", c.Storage.Minio.UseSSL)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("GEMINI_MODEL", c.LLM.Model)
	c.LLM.AnalyzeAPIKey = strings.TrimSpace(getEnv("GEMINI_API_KEY_ANALYZE", c.LLM.AnalyzeAPIKey))
	c.LLM.Timeout = getEnvAsDuration("GEMINI_TIMEOUT", c.LLM.Timeout)
	if keys := organizeKeysFromEnv(); len(keys) > 0 {
		c.LLM.OrganizeAPIKeys = keys
	}

	c.Keys.Store = getEnv("KEYS_STORE", c.Keys.Store)
	c.Keys.StatePath = getEnv("KEY_STATE_FILE", c.Keys.StatePath)
	c.Keys.DailyLimit = getEnvAsInt("KEY_DAILY_LIMIT", c.Keys.DailyLimit)

	c.Pipeline.CheckInterval = getEnvAsDuration("CHECK_INTERVAL", c.Pipeline.CheckInterval)
	c.Pipeline.BatchSize = getEnvAsInt("BATCH_SIZE", c.Pipeline.BatchSize)
	c.Confidence.Target = getEnvAsFloat64("TARGET_CONFIDENCE", c.Confidence.Target)

	c.Notify.SMTPHost = getEnv("SMTP_SERVER", c.Notify.SMTPHost)
	c.Notify.SMTPPort = getEnvAsInt("SMTP_PORT", c.Notify.SMTPPort)
	c.Notify.Username = getEnv("SENDER_EMAIL", c.Notify.Username)
	c.Notify.Password = getEnv("SENDER_PASSWORD", c.Notify.Password)
	c.Notify.From = getEnv("SENDER_EMAIL", c.Notify.From)
	if to := getEnv("RECIPIENT_EMAIL", ""); to != "" {
		c.Notify.To = splitList(to)
	}

	c.CRM.Endpoint = getEnv("WHISE_API_ENDPOINT", c.CRM.Endpoint)
	c.CRM.Token = getEnv("WHISE_API_TOKEN", c.CRM.Token)

	c.Search.IndexPath = getEnv("SEARCH_INDEX_PATH", c.Search.IndexPath)

	c.Ingest.InboxDir = getEnv("INBOX_DIR", c.Ingest.InboxDir)
}

// organizeKeysFromEnv reads GEMINI_API_KEY_1..21, skipping empty slots.
func organizeKeysFromEnv() []string {
	var keys []string
	for i := 1; i <= MaxOrganizeKeys; i++ {
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i))); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("storage.backend", c.Storage.Backend, OneOf("local", "minio"))
	v.Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite"))
	v.Field("keys.store", c.Keys.Store, OneOf("file", "database"))
	v.Field("llm.provider", c.LLM.Provider, OneOf("gemini", "openai"))
	v.Field("llm.analyze_api_key", c.LLM.AnalyzeAPIKey, Required)
	v.Field("pipeline.batch_size", c.Pipeline.BatchSize, Positive)
	v.Field("keys.daily_limit", c.Keys.DailyLimit, Positive)
	v.Field("pipeline.check_interval", c.Pipeline.CheckInterval, Positive)
	v.Field("pipeline.quota_cooldown", c.Pipeline.QuotaCooldown, Positive)
	v.Field("pipeline.max_retries", c.Pipeline.MaxRetries, Positive)
	v.Field("confidence.target", c.Confidence.Target, Between(0, 100))
	if c.Database.Driver == "postgres" {
		v.Field("database.dsn", c.Database.DSN, Required)
	}
	if c.Storage.Backend == "minio" {
		v.Field("storage.minio.endpoint", c.Storage.Minio.Endpoint, Required)
		v.Field("storage.minio.bucket", c.Storage.Minio.Bucket, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
