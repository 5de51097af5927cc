package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Defaults for optional fields
const (
	DefaultMetadataURL = "https://www.bing.com/HPImageArchive.aspx?format=js&idx=0&n=1"
	DefaultBaseURL     = "https://www.bing.com"
	DefaultArchiveAPI  = "https://api.github.com"
	DefaultBranch      = "main"
	DefaultSchedule    = "0 0 * * *"
	DefaultListenAddr  = "127.0.0.1:8787"
	DefaultQuality     = 80
	DefaultTimeout     = 30 * time.Second
)

// Variant sources
const (
	SourceImage  = "image"
	SourceMobile = "mobile"
)

// Config represents the complete wallsyncd configuration
type Config struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Media       MediaConfig       `yaml:"media"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	FastKV      FastKVConfig      `yaml:"fast_kv"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Serve       ServeConfig       `yaml:"serve"`
}

// ProviderConfig configures the upstream daily image provider
type ProviderConfig struct {
	MetadataURL string        `yaml:"metadata_url"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MediaConfig configures the encoded variants
type MediaConfig struct {
	Quality  int             `yaml:"quality"`
	Variants []VariantConfig `yaml:"variants"`
}

// VariantConfig describes one encoded output
type VariantConfig struct {
	Role     string `yaml:"role"`
	Source   string `yaml:"source"`
	MaxWidth int    `yaml:"max_width"`
}

// ObjectStoreConfig configures the S3-compatible object store target
type ObjectStoreConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Bucket              string `yaml:"bucket"`
	Region              string `yaml:"region"`
	Endpoint            string `yaml:"endpoint"`
	Prefix              string `yaml:"prefix"`
	CacheControl        string `yaml:"cache_control"`
	AccessKeyID         string `yaml:"access_key_id"`
	SecretAccessKeyFile string `yaml:"secret_access_key_file"`
}

// FastKVConfig configures the Redis fast key-value target
type FastKVConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	PasswordFile string        `yaml:"password_file"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	TTL          time.Duration `yaml:"ttl"`
}

// ArchiveConfig configures the GitHub-backed versioned archive target
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIURL     string `yaml:"api_url"`
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Branch     string `yaml:"branch"`
	TokenFile  string `yaml:"token_file"`
	PathPrefix string `yaml:"path_prefix"`
}

// ServeConfig configures the long-running trigger server
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Schedule   string `yaml:"schedule"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Provider.MetadataURL = os.ExpandEnv(c.Provider.MetadataURL)
	c.Provider.BaseURL = os.ExpandEnv(c.Provider.BaseURL)
	c.ObjectStore.Bucket = os.ExpandEnv(c.ObjectStore.Bucket)
	c.ObjectStore.Region = os.ExpandEnv(c.ObjectStore.Region)
	c.ObjectStore.Endpoint = os.ExpandEnv(c.ObjectStore.Endpoint)
	c.ObjectStore.AccessKeyID = os.ExpandEnv(c.ObjectStore.AccessKeyID)
	c.ObjectStore.SecretAccessKeyFile = os.ExpandEnv(c.ObjectStore.SecretAccessKeyFile)
	c.FastKV.Addr = os.ExpandEnv(c.FastKV.Addr)
	c.FastKV.PasswordFile = os.ExpandEnv(c.FastKV.PasswordFile)
	c.Archive.APIURL = os.ExpandEnv(c.Archive.APIURL)
	c.Archive.Owner = os.ExpandEnv(c.Archive.Owner)
	c.Archive.Repo = os.ExpandEnv(c.Archive.Repo)
	c.Archive.Branch = os.ExpandEnv(c.Archive.Branch)
	c.Archive.TokenFile = os.ExpandEnv(c.Archive.TokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Provider.MetadataURL == "" {
		c.Provider.MetadataURL = DefaultMetadataURL
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultBaseURL
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultTimeout
	}
	if c.Media.Quality == 0 {
		c.Media.Quality = DefaultQuality
	}
	if len(c.Media.Variants) == 0 {
		c.Media.Variants = DefaultVariants()
	}
	for i := range c.Media.Variants {
		if c.Media.Variants[i].Source == "" {
			c.Media.Variants[i].Source = SourceImage
		}
	}
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = "us-east-1"
	}
	if c.ObjectStore.Prefix == "" {
		c.ObjectStore.Prefix = "wallpaper/"
	}
	if c.FastKV.Prefix == "" {
		c.FastKV.Prefix = "wallpaper:"
	}
	if c.Archive.APIURL == "" {
		c.Archive.APIURL = DefaultArchiveAPI
	}
	if c.Archive.Branch == "" {
		c.Archive.Branch = DefaultBranch
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
	if c.Serve.Schedule == "" {
		c.Serve.Schedule = DefaultSchedule
	}
}

// DefaultVariants returns the desktop, mobile and thumbnail variants
func DefaultVariants() []VariantConfig {
	return []VariantConfig{
		{Role: "desktop", Source: SourceImage},
		{Role: "mobile", Source: SourceMobile},
		{Role: "thumbnail", Source: SourceImage, MaxWidth: 480},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Provider.MetadataURL, "http://") && !strings.HasPrefix(c.Provider.MetadataURL, "https://") {
		return fmt.Errorf("provider.metadata_url must be an http(s) URL: %s", c.Provider.MetadataURL)
	}

	if c.Media.Quality < 1 || c.Media.Quality > 100 {
		return fmt.Errorf("media.quality must be between 1 and 100, got %d", c.Media.Quality)
	}

	roles := make(map[string]bool)
	for i, v := range c.Media.Variants {
		if v.Role == "" {
			return fmt.Errorf("media.variants[%d].role is required", i)
		}
		if roles[v.Role] {
			return fmt.Errorf("media.variants: duplicate role %q", v.Role)
		}
		roles[v.Role] = true

		switch v.Source {
		case SourceImage, SourceMobile:
			// valid
		default:
			return fmt.Errorf("invalid media.variants[%d].source: %s (must be image or mobile)", i, v.Source)
		}
		if v.MaxWidth < 0 {
			return fmt.Errorf("media.variants[%d].max_width must not be negative", i)
		}
	}

	if !c.ObjectStore.Enabled && !c.FastKV.Enabled && !c.Archive.Enabled {
		return fmt.Errorf("at least one of object_store, fast_kv or archive must be enabled")
	}

	if c.ObjectStore.Enabled {
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object_store.bucket is required when object_store is enabled")
		}
		if (c.ObjectStore.AccessKeyID == "") != (c.ObjectStore.SecretAccessKeyFile == "") {
			return fmt.Errorf("object_store: access_key_id and secret_access_key_file must be set together")
		}
	}

	if c.FastKV.Enabled && c.FastKV.Addr == "" {
		return fmt.Errorf("fast_kv.addr is required when fast_kv is enabled")
	}

	if c.Archive.Enabled {
		if c.Archive.Owner == "" || c.Archive.Repo == "" {
			return fmt.Errorf("archive.owner and archive.repo are required when archive is enabled")
		}
		if c.Archive.TokenFile == "" {
			return fmt.Errorf("archive.token_file is required when archive is enabled")
		}
		if c.Archive.PathPrefix != "" && !strings.HasSuffix(c.Archive.PathPrefix, "/") {
			return fmt.Errorf("archive.path_prefix must end with a slash: %s", c.Archive.PathPrefix)
		}
	}

	if _, err := cron.ParseStandard(c.Serve.Schedule); err != nil {
		return fmt.Errorf("invalid serve.schedule %q: %w", c.Serve.Schedule, err)
	}

	return nil
}

// EnabledTargets returns the names of the enabled sync targets
func (c *Config) EnabledTargets() []string {
	var names []string
	if c.Archive.Enabled {
		names = append(names, "archive")
	}
	if c.ObjectStore.Enabled {
		names = append(names, "objectStore")
	}
	if c.FastKV.Enabled {
		names = append(names, "fastKv")
	}
	return names
}

// ReadSecretFile reads a credential file and trims surrounding whitespace.
// An empty path yields an empty secret.
func ReadSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
