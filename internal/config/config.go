package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Graph   GraphConfig   `yaml:"graph" mapstructure:"graph"`
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`
	Tiger   TigerConfig   `yaml:"tiger" mapstructure:"tiger"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig holds input and output file locations. Relative paths are
// resolved against Dir.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	CTPP         string `yaml:"ctpp" mapstructure:"ctpp"`
	CTPPEncoding string `yaml:"ctpp_encoding" mapstructure:"ctpp_encoding"`
	FIPS         string `yaml:"fips" mapstructure:"fips"`
	Nodes        string `yaml:"nodes" mapstructure:"nodes"`
	TigerCounty  string `yaml:"tiger_county" mapstructure:"tiger_county"`
	CensusCounty string `yaml:"census_county" mapstructure:"census_county"`
	CensusPlaces string `yaml:"census_places" mapstructure:"census_places"`
	GraphName    string `yaml:"graph_name" mapstructure:"graph_name"`
	Regionalized string `yaml:"regionalized" mapstructure:"regionalized"`
}

// Path resolves name against the data directory. Absolute paths and
// empty names are returned unchanged.
func (d DataConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// GraphConfig holds the flow filters applied before graph construction.
type GraphConfig struct {
	MaxMOERatio    float64 `yaml:"max_moe_ratio" mapstructure:"max_moe_ratio"`
	MinWorkers     float64 `yaml:"min_workers" mapstructure:"min_workers"`
	AllowSelfLinks bool    `yaml:"allow_self_links" mapstructure:"allow_self_links"`
}

// ClusterConfig configures Louvain community detection.
type ClusterConfig struct {
	Resolution float64 `yaml:"resolution" mapstructure:"resolution"`
	Seed       uint64  `yaml:"seed" mapstructure:"seed"`
	MaxLevels  int     `yaml:"max_levels" mapstructure:"max_levels"`
	MaxPasses  int     `yaml:"max_passes" mapstructure:"max_passes"`
}

// ModelConfig configures the regional classifier.
type ModelConfig struct {
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	SplitSeed    uint64  `yaml:"split_seed" mapstructure:"split_seed"`
	TestFraction float64 `yaml:"test_fraction" mapstructure:"test_fraction"`
	Estimators   int     `yaml:"estimators" mapstructure:"estimators"`
	Neighbors    int     `yaml:"neighbors" mapstructure:"neighbors"`
}

// TigerConfig configures Census TIGER/Line downloads.
type TigerConfig struct {
	Year    int    `yaml:"year" mapstructure:"year"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int            `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string         `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	Sources     []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// SourceConfig maps a remote dataset URL (http, https or ftp) to the file
// name it is stored under in the data directory. Archives marked Unzip are
// extracted into UnzipTo, or next to the download when it is empty.
type SourceConfig struct {
	File    string `yaml:"file" mapstructure:"file"`
	URL     string `yaml:"url" mapstructure:"url"`
	Unzip   bool   `yaml:"unzip" mapstructure:"unzip"`
	UnzipTo string `yaml:"unzip_to" mapstructure:"unzip_to"`
}

// StoreConfig configures the run bookkeeping backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads ./config.yaml when present, then LABORMARKET_* environment
// variables, over the built-in defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file, which must exist. An empty
// path falls back to the optional ./config.yaml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LABORMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", ".")
	v.SetDefault("data.ctpp", "Job_4393.csv")
	v.SetDefault("data.ctpp_encoding", "utf-8")
	v.SetDefault("data.fips", "fips.csv")
	v.SetDefault("data.nodes", "U.S. Labor Market [Nodes].csv")
	v.SetDefault("data.tiger_county", "tl_2015_us_county.csv")
	v.SetDefault("data.census_county", "DEC_10_SF1_G001_with_ann.csv")
	v.SetDefault("data.census_places", "2010-incorporated-places.csv")
	v.SetDefault("data.graph_name", "U.S. Labor Market")
	v.SetDefault("data.regionalized", "Regionalized U.S. Counties.csv")

	v.SetDefault("graph.max_moe_ratio", 0.5)
	v.SetDefault("graph.min_workers", 100)
	v.SetDefault("graph.allow_self_links", false)

	v.SetDefault("cluster.resolution", 1.0)
	v.SetDefault("cluster.seed", 42)
	v.SetDefault("cluster.max_levels", 10)
	v.SetDefault("cluster.max_passes", 100)

	v.SetDefault("model.seed", 42)
	v.SetDefault("model.split_seed", 0)
	v.SetDefault("model.test_fraction", 0.25)
	v.SetDefault("model.estimators", 10)
	v.SetDefault("model.neighbors", 5)

	v.SetDefault("tiger.year", 2015)
	v.SetDefault("tiger.temp_dir", "/tmp/tiger")

	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "labormarket/1.0")
	v.SetDefault("fetch.concurrency", 3)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "labormarket.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
