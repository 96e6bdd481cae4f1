package configuration

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/logging"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist in the working directory. When none
// do, it retries from the nearest parent holding a go.mod, so tests run from
// package directories still pick up the repository's .env.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		p := f
		if dir != "" {
			p = filepath.Join(dir, f)
		}
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"clericus"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type IngestionOptions struct {
	Workers          int           `env:"INGESTION_WORKERS" envDefault:"4"`
	RunTimeout       time.Duration `env:"INGESTION_RUN_TIMEOUT" envDefault:"2h"`
	StaleAfter       time.Duration `env:"INGESTION_STALE_AFTER" envDefault:"3h"`
	WatchdogInterval time.Duration `env:"INGESTION_WATCHDOG_INTERVAL" envDefault:"1m"`
	ProgressEvery    int           `env:"INGESTION_PROGRESS_EVERY" envDefault:"100"`
	MaxWarnings      int           `env:"INGESTION_MAX_WARNINGS" envDefault:"50"`
	ActorID          string        `env:"INGESTION_ACTOR_ID" envDefault:"importer"`
	UploadsPath      string        `env:"UPLOADS_PATH" envDefault:"uploads"`
}

// Validate checks the ingestion configuration for errors
func (o *IngestionOptions) Validate() error {
	var errs []error
	if o.Workers < 1 || o.Workers > 64 {
		errs = append(errs, fmt.Errorf("INGESTION_WORKERS must be between 1 and 64, got %d", o.Workers))
	}
	if o.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INGESTION_RUN_TIMEOUT must be positive, got %s", o.RunTimeout))
	}
	if o.StaleAfter < o.RunTimeout {
		errs = append(errs, fmt.Errorf("INGESTION_STALE_AFTER (%s) must not be shorter than INGESTION_RUN_TIMEOUT (%s)", o.StaleAfter, o.RunTimeout))
	}
	if o.WatchdogInterval <= 0 {
		errs = append(errs, fmt.Errorf("INGESTION_WATCHDOG_INTERVAL must be positive, got %s", o.WatchdogInterval))
	}
	if o.ProgressEvery < 1 {
		errs = append(errs, fmt.Errorf("INGESTION_PROGRESS_EVERY must be positive, got %d", o.ProgressEvery))
	}
	if o.MaxWarnings < 0 {
		errs = append(errs, fmt.Errorf("INGESTION_MAX_WARNINGS must be non-negative, got %d", o.MaxWarnings))
	}
	if strings.TrimSpace(o.ActorID) == "" {
		errs = append(errs, errors.New("INGESTION_ACTOR_ID is required"))
	}
	return errors.Join(errs...)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ingest"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"http://localhost:4318"`
}

type PrometheusOptions struct {
	Addr string `env:"PROMETHEUS_METRICS_ADDR" envDefault:""`
	Path string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type Configuration struct {
	Database      DatabaseOptions
	Ingestion     IngestionOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions

	LogLevel string `env:"LOG_LEVEL" envDefault:"error"`
	// Empty means console only.
	LogPath string `env:"LOG_PATH" envDefault:""`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load parses the environment without touching the singleton.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Ingestion.Validate(); err != nil {
		return fmt.Errorf("ingestion configuration error: %w", err)
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
