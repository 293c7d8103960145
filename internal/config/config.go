// Package config loads mnmd's startup configuration from two distinct
// sources, each handled by the library the teacher uses for that job:
//
//   - Connection settings for storage/KB/worker come from a layered viper
//     setup, grounded on the teacher's "flags > viper (config file + env
//     vars) > defaults" priority (cmd/bd/config.go's
//     viper.New()/SetConfigFile()/SetConfigType()/ReadInConfig() at
//     cmd/bd/config.go:476-481). Unlike cmd/bd's package-level viper
//     singleton wired on program init, mnmd has no circular
//     daemon-flag-reload problem to solve, so Load returns a single value
//     instead of mutating package state.
//   - The static seed data (task-size table, taxon-rank whitelist,
//     meta-item Q-ids) spec §6.2/§6.1 describe as fixed lookup tables is
//     parsed directly with BurntSushi/toml, the same role the teacher
//     gives it for formula files (internal/formula/parser.go's
//     toml.Unmarshal(data, &formula)) and recipes (internal/recipes). This
//     data isn't env-overridable and doesn't need viper's merge layer, so
//     LoadSeed decodes it straight into a typed struct.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// EnvPrefix is the environment-variable prefix for every setting below
// (e.g. database.dsn -> MNM_DATABASE_DSN), mirroring the teacher's BD_
// env-var convention for bd's own viper instance.
const EnvPrefix = "MNM"

// DatabaseConfig configures internal/storage/mysql.Open.
type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
}

// KBConfig configures internal/kbclient.New.
type KBConfig struct {
	APIURL            string
	SPARQLURL         string
	ReplicaDSN        string
	ChangeFeedURL     string
	BotName           string
	BotPassword       string
	RequestsPerSecond float64
	RetryInterval     time.Duration
	MaxRetries        uint64
}

// AsClientConfig converts to kbclient.Config.
func (k KBConfig) AsClientConfig() kbclient.Config {
	return kbclient.Config{
		APIURL:            k.APIURL,
		SPARQLURL:         k.SPARQLURL,
		ReplicaDSN:        k.ReplicaDSN,
		ChangeFeedURL:     k.ChangeFeedURL,
		BotName:           k.BotName,
		BotPassword:       k.BotPassword,
		RequestsPerSecond: k.RequestsPerSecond,
		RetryInterval:     k.RetryInterval,
		MaxRetries:        k.MaxRetries,
	}
}

// WorkerConfig configures internal/worker.Worker.Config.
type WorkerConfig struct {
	MaxConcurrent     int
	PollInterval      time.Duration
	WatchdogInterval  time.Duration
	WatchdogThreshold time.Duration
	ReconcileInterval time.Duration
}

// LogConfig controls the log/slog handler cmd/mnmd builds.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Config is the fully resolved startup configuration.
type Config struct {
	Database DatabaseConfig
	KB       KBConfig
	Worker   WorkerConfig
	Log      LogConfig

	// TaskSizes overrides model.DefaultTaskSizes by action tag; unset
	// actions keep their built-in size. Values are lower-case size names
	// parsed with model.ParseTaskSize.
	TaskSizes map[string]model.TaskSize

	// TaxonRanks, if non-empty, replaces internal/matcher's built-in
	// rank->KB-item whitelist entirely (spec's taxon_matcher rank table is
	// catalog-install-specific, not a universal constant).
	TaxonRanks map[string]string

	// MetaItems, if non-empty, replaces kbclient.MetaItems entirely.
	MetaItems []string
}

// Seed holds the static, non-env-overridable seed tables an operator may
// ship alongside the connection config: per-action task sizes, the
// taxon-rank whitelist, and the meta-item Q-id list. Field names match the
// TOML table/array names an operator writes by hand.
type Seed struct {
	TaskSizes  map[string]string `toml:"task_sizes"`
	TaxonRanks map[string]string `toml:"taxon_ranks"`
	MetaItems  []string          `toml:"meta_items"`
}

// LoadSeed parses path as a Seed TOML file using BurntSushi/toml directly,
// the same decode-straight-into-a-struct idiom the teacher uses for
// formula files. A missing path, or a path that doesn't exist on disk, is
// not an error: the seed tables are optional and every caller falls back
// to the built-in defaults (model.DefaultTaskSizes, matcher's own rank
// whitelist, kbclient.MetaItems).
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Seed{}, nil
		}
		return nil, fmt.Errorf("config: read seed %s: %w", path, err)
	}
	var seed Seed
	if err := toml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("config: parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// ApplySeed copies seed's tables into c, converting task sizes with
// model.ParseTaskSize. Empty tables in seed leave c's existing values (the
// zero-value Config fields, i.e. "use the built-in defaults") untouched.
func (c *Config) ApplySeed(seed *Seed) {
	if seed == nil {
		return
	}
	if len(seed.TaskSizes) > 0 {
		c.TaskSizes = make(map[string]model.TaskSize, len(seed.TaskSizes))
		for action, size := range seed.TaskSizes {
			c.TaskSizes[action] = model.ParseTaskSize(size)
		}
	}
	if len(seed.TaxonRanks) > 0 {
		c.TaxonRanks = seed.TaxonRanks
	}
	if len(seed.MetaItems) > 0 {
		c.MetaItems = seed.MetaItems
	}
}

func defaults(v *viper.Viper) {
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("kb.requests_per_second", kbclient.DefaultRequestsPerSecond)
	v.SetDefault("kb.retry_interval", kbclient.DefaultRetryInterval)
	v.SetDefault("kb.max_retries", kbclient.DefaultMaxRetries)
	v.SetDefault("worker.max_concurrent", 4)
	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.watchdog_interval", "30s")
	v.SetDefault("worker.watchdog_threshold", "10m")
	v.SetDefault("worker.reconcile_interval", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path (a TOML file) if it exists, layers MNM_-prefixed
// environment variables over it (e.g. MNM_KB_BOT_PASSWORD), and returns the
// resolved Config. An empty path skips the file read entirely and returns
// defaults plus any environment overrides, matching the teacher's tolerant
// "config file is optional" validateSyncConfig behavior.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		KB: KBConfig{
			APIURL:            v.GetString("kb.api_url"),
			SPARQLURL:         v.GetString("kb.sparql_url"),
			ReplicaDSN:        v.GetString("kb.replica_dsn"),
			ChangeFeedURL:     v.GetString("kb.change_feed_url"),
			BotName:           v.GetString("kb.bot_name"),
			BotPassword:       v.GetString("kb.bot_password"),
			RequestsPerSecond: v.GetFloat64("kb.requests_per_second"),
			RetryInterval:     v.GetDuration("kb.retry_interval"),
			MaxRetries:        uint64(v.GetInt64("kb.max_retries")),
		},
		Worker: WorkerConfig{
			MaxConcurrent:     v.GetInt("worker.max_concurrent"),
			PollInterval:      v.GetDuration("worker.poll_interval"),
			WatchdogInterval:  v.GetDuration("worker.watchdog_interval"),
			WatchdogThreshold: v.GetDuration("worker.watchdog_threshold"),
			ReconcileInterval: v.GetDuration("worker.reconcile_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return cfg, nil
}

// ResolvedTaskSizes merges model.DefaultTaskSizes with cfg.TaskSizes, the
// latter winning on conflict, for internal/jobqueue.New's taskSizes
// parameter.
func (c *Config) ResolvedTaskSizes() map[string]model.TaskSize {
	out := make(map[string]model.TaskSize, len(model.DefaultTaskSizes))
	for action, size := range model.DefaultTaskSizes {
		out[action] = size
	}
	for action, size := range c.TaskSizes {
		out[action] = size
	}
	return out
}
