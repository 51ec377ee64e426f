package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	NodeID   uint64         `mapstructure:"node_id"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ReadBufferBytes int    `mapstructure:"read_buffer_bytes"`
}

type SnapshotConfig struct {
	Path     string `mapstructure:"path"`
	JSONPath string `mapstructure:"json_path"`
}

type NotifyConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}

func Load() (*Config, error) {
	viper.SetConfigName("qstore")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.listen_addr", "0.0.0.0:6380")
	viper.SetDefault("server.read_buffer_bytes", 65536)
	viper.SetDefault("snapshot.path", "qstore.snap")
	viper.SetDefault("snapshot.json_path", "qstore.tree.json")
	viper.SetDefault("notify.queue_capacity", 256)
	viper.SetDefault("node_id", 0)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if id := os.Getenv("Q_NODE_ID"); id != "" {
		if parsed, ok := parseNodeID(id); ok {
			cfg.NodeID = parsed
		}
	}

	return &cfg, nil
}

func parseNodeID(s string) (uint64, bool) {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + uint64(r-'0')
	}
	return n, true
}
