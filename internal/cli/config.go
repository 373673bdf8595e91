package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wheelwright-dev/wheelwright/pkg/cache"
	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/index"
)

// defaultConfigFile is picked up from the working directory when --config
// is not given.
const defaultConfigFile = "wheelwright.toml"

// fileConfig is the on-disk configuration. Flags override file values;
// file values override defaults.
type fileConfig struct {
	Package      string      `toml:"package"`
	Requirements []string    `toml:"requirements"`
	Exclude      []string    `toml:"exclude"`
	Dest         string      `toml:"dest"`
	Index        string      `toml:"index"`
	LocalIndex   string      `toml:"local_index"`
	Workers      int         `toml:"workers"`
	Timeout      duration    `toml:"timeout"`
	AllowImpure  bool        `toml:"allow_impure"`
	Cache        cacheConfig `toml:"cache"`
}

type cacheConfig struct {
	Backend string      `toml:"backend"` // file, redis, or none
	Dir     string      `toml:"dir"`
	TTL     duration    `toml:"ttl"`
	Redis   redisConfig `toml:"redis"`
}

type redisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// duration makes time.Duration TOML-decodable from strings like "60s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// loadConfig reads the config file at path, or the default file when path
// is empty. A missing default file yields a zero config; a missing
// explicit file is an error.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	return cfg, nil
}

// cacheDir returns the directory for cached index responses.
func cacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "wheelwright"), nil
}

// openCache builds the configured cache backend. The default is a file
// cache under the user cache directory.
func openCache(ctx context.Context, cfg cacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "wheelwright",
		})
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			var err error
			if dir, err = cacheDir(); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "locate cache directory")
			}
		}
		return cache.NewFileCache(dir)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
	}
}

// openIndex builds the package index from config: a local directory index
// when local_index is set, otherwise an HTTP index with the configured
// cache behind it.
func openIndex(ctx context.Context, cfg fileConfig) (index.Index, cache.Cache, error) {
	if cfg.LocalIndex != "" {
		return index.NewLocalIndex(cfg.LocalIndex), nil, nil
	}
	if cfg.Index == "" {
		return nil, nil, errors.New(errors.ErrCodeInvalidConfig, "no index configured; set index or local_index")
	}
	backend, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	ttl := cfg.Cache.TTL.Duration
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return index.NewHTTPIndex(cfg.Index, backend, ttl), backend, nil
}
