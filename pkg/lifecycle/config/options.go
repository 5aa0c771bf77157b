package config

import (
	"fmt"

	"github.com/tendant/content-lifecycle/pkg/lifecycle/objectkey"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage adds an in-memory storage backend
// If name is empty, defaults to "memory"
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{Name: name, Type: "memory"})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir": baseDir,
			},
		}
		if urlPrefix != "" {
			backend.Config["url_prefix"] = urlPrefix
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// S3Options holds S3-specific storage settings
type S3Options struct {
	Region                 string
	Bucket                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	PresignDuration        int
	EnableSSE              bool
	SSEAlgorithm           string
	SSEKMSKeyID            string
	CreateBucketIfNotExist bool
}

// WithS3Storage adds an S3 storage backend
// If name is empty, defaults to "s3"
func WithS3Storage(name string, opts S3Options) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if opts.Bucket == "" {
			return fmt.Errorf("S3 bucket name cannot be empty")
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket":                     opts.Bucket,
				"region":                     opts.Region,
				"use_path_style":             opts.UsePathStyle,
				"enable_sse":                 opts.EnableSSE,
				"create_bucket_if_not_exist": opts.CreateBucketIfNotExist,
			},
		}
		setIfNotEmpty(backend.Config, "access_key_id", opts.AccessKeyID)
		setIfNotEmpty(backend.Config, "secret_access_key", opts.SecretAccessKey)
		setIfNotEmpty(backend.Config, "endpoint", opts.Endpoint)
		setIfNotEmpty(backend.Config, "sse_algorithm", opts.SSEAlgorithm)
		setIfNotEmpty(backend.Config, "sse_kms_key_id", opts.SSEKMSKeyID)
		if opts.PresignDuration > 0 {
			backend.Config["presign_duration"] = opts.PresignDuration
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// WithRedisLock serializes change tokens through Redis
func WithRedisLock(url string) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = url
		return nil
	}
}

// WithIndexWebhook sets the search index refresh endpoint
func WithIndexWebhook(url string) Option {
	return func(c *ServerConfig) error {
		c.IndexURL = url
		return nil
	}
}

// WithRepository selects the repository id and its root folder id
func WithRepository(id, rootFolderID string) Option {
	return func(c *ServerConfig) error {
		if id == "" {
			return fmt.Errorf("repository id cannot be empty")
		}
		c.RepositoryID = id
		if rootFolderID != "" {
			c.RootFolderID = rootFolderID
		}
		return nil
	}
}

// WithSystemPrincipals sets the ids the anonymous and anyone principals are exposed as
func WithSystemPrincipals(anonymous, anyone string) Option {
	return func(c *ServerConfig) error {
		if anonymous != "" {
			c.AnonymousPrincipal = anonymous
		}
		if anyone != "" {
			c.AnyonePrincipal = anyone
		}
		return nil
	}
}

// WithObjectKeyLayout selects how attachment blobs are named in storage
func WithObjectKeyLayout(layout string) Option {
	return func(c *ServerConfig) error {
		if _, err := objectkey.New(layout); err != nil {
			return err
		}
		c.ObjectKeyLayout = layout
		return nil
	}
}

// WithUniqueNames toggles "(N)" renaming of colliding names
func WithUniqueNames(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.BuildUniqueName = enabled
		return nil
	}
}

// WithTopLevelInheritance toggles ACL inheritance for objects directly under the root
func WithTopLevelInheritance(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.InheritPermissionAtTopLevel = enabled
		return nil
	}
}

// WithTreeLimits bounds ancestor walks and tree operations
func WithTreeLimits(maxDepth, maxNodes int) Option {
	return func(c *ServerConfig) error {
		if maxDepth <= 0 || maxNodes <= 0 {
			return fmt.Errorf("tree limits must be positive, got depth %d nodes %d", maxDepth, maxNodes)
		}
		c.MaxTreeDepth = maxDepth
		c.MaxTreeNodes = maxNodes
		return nil
	}
}

func setIfNotEmpty(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
