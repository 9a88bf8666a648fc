package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const megabyte = 1024 * 1024

// Document and broad MIME lists mirror what the upload forms accept.
const (
	defaultDocumentMIMEs = "application/pdf,image/jpeg,image/jpg,image/png,image/gif,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	defaultBroadMIMEs    = defaultDocumentMIMEs + ",image/webp,application/vnd.ms-excel,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/x-tex,text/x-tex,application/x-bibtex,text/x-bibtex,text/plain,application/zip,application/x-zip-compressed,application/x-rar-compressed,application/vnd.rar"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Registration  RegistrationConfig
	Bootstrap     BootstrapConfig
	Storage       StorageConfig
	Notifications NotificationConfig
	Algorithms    AlgorithmConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig toggles response caching for research and thesis listings.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RegistrationConfig describes which email domains may self register.
type RegistrationConfig struct {
	StaffDomain   string
	StudentDomain string
	AdminEmail    string
}

// BootstrapConfig holds the identities seeded on first start.
type BootstrapConfig struct {
	AdminName          string
	AdminLegalID       string
	AdminEmail         string
	AdminPassword      string
	SuperAdminName     string
	SuperAdminLegalID  string
	SuperAdminEmail    string
	SuperAdminPassword string
}

// StorageConfig controls where uploads live and what they may contain.
type StorageConfig struct {
	RootDir       string
	StagingDir    string
	OrphanGrace   time.Duration
	SweepInterval time.Duration
	Shared        UploadLimits
	Personal      UploadLimits
	Research      UploadLimits
	Thesis        UploadLimits
}

// UploadLimits caps size and content type for one resource kind.
type UploadLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// NotificationConfig configures access code delivery.
type NotificationConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
}

// AlgorithmConfig points at the external computation scripts.
type AlgorithmConfig struct {
	PythonBin  string
	ScriptsDir string
	Timeout    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Registration = RegistrationConfig{
		StaffDomain:   strings.ToLower(v.GetString("REGISTRATION_STAFF_DOMAIN")),
		StudentDomain: strings.ToLower(v.GetString("REGISTRATION_STUDENT_DOMAIN")),
		AdminEmail:    strings.ToLower(v.GetString("REGISTRATION_ADMIN_EMAIL")),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminName:          v.GetString("BOOTSTRAP_ADMIN_NAME"),
		AdminLegalID:       v.GetString("BOOTSTRAP_ADMIN_LEGAL_ID"),
		AdminEmail:         strings.ToLower(v.GetString("BOOTSTRAP_ADMIN_EMAIL")),
		AdminPassword:      v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		SuperAdminName:     v.GetString("BOOTSTRAP_SUPERADMIN_NAME"),
		SuperAdminLegalID:  v.GetString("BOOTSTRAP_SUPERADMIN_LEGAL_ID"),
		SuperAdminEmail:    strings.ToLower(v.GetString("BOOTSTRAP_SUPERADMIN_EMAIL")),
		SuperAdminPassword: v.GetString("BOOTSTRAP_SUPERADMIN_PASSWORD"),
	}

	cfg.Storage = StorageConfig{
		RootDir:       v.GetString("STORAGE_ROOT_DIR"),
		StagingDir:    v.GetString("STORAGE_STAGING_DIR"),
		OrphanGrace:   parseDuration(v.GetString("STORAGE_ORPHAN_GRACE"), time.Hour),
		SweepInterval: parseDuration(v.GetString("STORAGE_SWEEP_INTERVAL"), 0),
		Shared:        uploadLimits(v, "SHARED", 10*megabyte),
		Personal:      uploadLimits(v, "PERSONAL", 50*megabyte),
		Research:      uploadLimits(v, "RESEARCH", 50*megabyte),
		Thesis:        uploadLimits(v, "THESIS", 50*megabyte),
	}

	cfg.Notifications = NotificationConfig{
		Enabled:      v.GetBool("NOTIFY_ENABLED"),
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: v.GetString("SMTP_USERNAME"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		From:         v.GetString("SMTP_FROM"),
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		MaxRetries:   v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Algorithms = AlgorithmConfig{
		PythonBin:  v.GetString("ALGORITHMS_PYTHON_BIN"),
		ScriptsDir: v.GetString("ALGORITHMS_SCRIPTS_DIR"),
		Timeout:    parseDuration(v.GetString("ALGORITHMS_TIMEOUT"), 2*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "research_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "research-portal-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REGISTRATION_STAFF_DOMAIN", "ubiobio.cl")
	v.SetDefault("REGISTRATION_STUDENT_DOMAIN", "alumnos.ubiobio.cl")
	v.SetDefault("REGISTRATION_ADMIN_EMAIL", "superadministrador@gmail.com")

	v.SetDefault("BOOTSTRAP_ADMIN_NAME", "superuser")
	v.SetDefault("BOOTSTRAP_ADMIN_LEGAL_ID", "45.678.912-2")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "su.user@gmail.cl")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "suser2024")
	v.SetDefault("BOOTSTRAP_SUPERADMIN_NAME", "Super Administrador")
	v.SetDefault("BOOTSTRAP_SUPERADMIN_LEGAL_ID", "12345678-9")
	v.SetDefault("BOOTSTRAP_SUPERADMIN_EMAIL", "superadministrador@gmail.com")
	v.SetDefault("BOOTSTRAP_SUPERADMIN_PASSWORD", "t.gutierrez2025")

	v.SetDefault("STORAGE_ROOT_DIR", "./uploads")
	v.SetDefault("STORAGE_STAGING_DIR", "./uploads/.staging")
	v.SetDefault("STORAGE_ORPHAN_GRACE", "1h")
	v.SetDefault("STORAGE_SWEEP_INTERVAL", "6h")
	v.SetDefault("STORAGE_SHARED_ALLOWED_MIME_TYPES", defaultDocumentMIMEs)
	v.SetDefault("STORAGE_PERSONAL_ALLOWED_MIME_TYPES", defaultBroadMIMEs)
	v.SetDefault("STORAGE_RESEARCH_ALLOWED_MIME_TYPES", defaultDocumentMIMEs)
	v.SetDefault("STORAGE_THESIS_ALLOWED_MIME_TYPES", defaultDocumentMIMEs)

	v.SetDefault("NOTIFY_ENABLED", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "no-reply@ubiobio.cl")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("ALGORITHMS_PYTHON_BIN", "python3")
	v.SetDefault("ALGORITHMS_SCRIPTS_DIR", "./algorithms")
	v.SetDefault("ALGORITHMS_TIMEOUT", "2m")
}

func uploadLimits(v *viper.Viper, kind string, fallbackSize int64) UploadLimits {
	size := v.GetInt64("STORAGE_" + kind + "_MAX_FILE_SIZE")
	if size <= 0 {
		size = fallbackSize
	}
	return UploadLimits{
		MaxFileSizeBytes: size,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_" + kind + "_ALLOWED_MIME_TYPES")),
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
