package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/index/webhook"
	lockredis "github.com/tendant/content-lifecycle/pkg/lifecycle/lock/redis"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/objectkey"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/repo/memory"
	repopg "github.com/tendant/content-lifecycle/pkg/lifecycle/repo/postgres"
	fsstorage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/fs"
	memorystorage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/memory"
	s3storage "github.com/tendant/content-lifecycle/pkg/lifecycle/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	settings := lifecycle.DefaultSettings()
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		ObjectKeyLayout:       objectkey.LayoutFlat,
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
		RepositoryID:                "bedroom",
		RootFolderID:                lifecycle.DefaultRootFolderID,
		AnonymousPrincipal:          "anonymous",
		AnyonePrincipal:             "GROUP_EVERYONE",
		BuildUniqueName:             settings.BuildUniqueName,
		InheritPermissionAtTopLevel: settings.InheritPermissionAtTopLevel,
		MaxTreeDepth:                settings.MaxTreeDepth,
		MaxTreeNodes:                settings.MaxTreeNodes,
	}
}

// ServerConfig represents server configuration for the content lifecycle service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use; empty keeps the server default

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig
	ObjectKeyLayout       string // "flat" or "sharded"

	// Change log lock; empty uses an in-process lock, or a Postgres
	// advisory lock when the database is Postgres
	RedisURL string

	// Search index refresh endpoint; empty disables refreshes
	IndexURL string

	// Repository served by this instance
	RepositoryID       string
	RootFolderID       string
	AnonymousPrincipal string
	AnyonePrincipal    string

	// Engine behaviour
	BuildUniqueName             bool
	InheritPermissionAtTopLevel bool
	MaxTreeDepth                int
	MaxTreeNodes                int
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.RepositoryID == "" {
		return errors.New("repository_id is required")
	}
	if c.RootFolderID == "" {
		return errors.New("root_folder_id is required")
	}
	if c.MaxTreeDepth <= 0 || c.MaxTreeNodes <= 0 {
		return errors.New("max tree depth and max tree nodes must be positive")
	}
	if _, err := objectkey.New(c.ObjectKeyLayout); err != nil {
		return err
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	return nil
}

// Settings returns the engine settings carried by the configuration.
func (c *ServerConfig) Settings() lifecycle.Settings {
	return lifecycle.Settings{
		BuildUniqueName:             c.BuildUniqueName,
		InheritPermissionAtTopLevel: c.InheritPermissionAtTopLevel,
		MaxTreeDepth:                c.MaxTreeDepth,
		MaxTreeNodes:                c.MaxTreeNodes,
	}
}

// BuildService creates a Service from the server configuration. The
// returned func releases database and redis connections.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (lifecycle.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	keys, err := objectkey.New(c.ObjectKeyLayout)
	if err != nil {
		return nil, nil, err
	}
	options := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithObjectKeyGenerator(keys),
		lifecycle.WithSettings(c.Settings()),
		lifecycle.WithRepositoryInfo(lifecycle.RepositoryInfo{ID: c.RepositoryID, RootFolderID: c.RootFolderID}),
		lifecycle.WithPrincipalResolver(lifecycle.NewStaticPrincipals(c.AnonymousPrincipal, c.AnyonePrincipal)),
	}

	var pool *pgxpool.Pool
	switch c.DatabaseType {
	case "memory":
		options = append(options, lifecycle.WithRepository(memory.New()))
	case "postgres":
		pool, err = c.connectPostgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		repo := repopg.NewWithPool(pool)
		if err := repo.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		options = append(options, lifecycle.WithRepository(repo))
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	// The default backend is registered first so it becomes the service default
	for _, backendConfig := range c.orderedBackends() {
		store, err := c.buildStorageBackend(backendConfig)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		options = append(options, lifecycle.WithBlobStore(backendConfig.Name, store))
	}

	switch {
	case c.RedisURL != "":
		client, err := lockredis.NewClient(ctx, c.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		options = append(options, lifecycle.WithLocker(lockredis.New(client, lockredis.DefaultConfig(), logger)))
	case pool != nil:
		options = append(options, lifecycle.WithLocker(repopg.NewAdvisoryLocker(pool)))
	default:
		options = append(options, lifecycle.WithLocker(lifecycle.NewLocalLocker()))
	}

	if c.IndexURL != "" {
		indexer, err := webhook.New(c.IndexURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		options = append(options, lifecycle.WithIndexer(indexer))
	} else if c.Environment == "development" {
		options = append(options, lifecycle.WithIndexer(lifecycle.NewLoggingIndexer(logger)))
	}

	svc, err := lifecycle.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := svc.EnsureRootFolder(ctx, c.RepositoryID); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to ensure root folder: %w", err)
	}
	return svc, cleanup, nil
}

func (c *ServerConfig) orderedBackends() []StorageBackendConfig {
	ordered := make([]StorageBackendConfig, 0, len(c.StorageBackends))
	for _, b := range c.StorageBackends {
		if b.Name == c.DefaultStorageBackend {
			ordered = append(ordered, b)
		}
	}
	for _, b := range c.StorageBackends {
		if b.Name != c.DefaultStorageBackend {
			ordered = append(ordered, b)
		}
	}
	return ordered
}

func (c *ServerConfig) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (lifecycle.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/storage"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", ""),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
