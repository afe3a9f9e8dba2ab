// Package rconfig loads server/client configuration from flags, environment,
// and an optional .env file, layered with spf13/viper over subosito/gotenv
// (spec.md §6.1), replacing the teacher's bespoke JSON-file settings types.
package rconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Defaults mirror spec.md §6.1 verbatim.
const (
	DefaultSingleSegmentSizeMin = 10
	DefaultSingleSegmentSizeMax = 1500
	DefaultCwndStart            = 1500
	DefaultSocketTimeout        = 100 * time.Millisecond
	DefaultSocketMaxSize        = 64000
	DefaultFilePathMaxLength    = 256
	DefaultDownloadWorkers      = 2
	DefaultCubicC               = 0.4
	DefaultCubicB               = 0.7
)

// Config is the resolved set of tunables for either the server or client
// binary.
type Config struct {
	Host              string
	Port              int
	ClientHost        string
	ClientPort        int
	StorageBase       string
	MetricsAddr       string
	SingleSegmentMin  int
	SingleSegmentMax  int
	CwndStart         uint32
	SocketTimeout     time.Duration
	SocketMaxSize     int
	FilePathMaxLength int
	DownloadWorkers   int
}

// Load resolves configuration with precedence flags > env > .env > defaults.
// envFile may be empty to skip .env loading. v should already have any CLI
// flags bound via v.BindPFlag before Load is called, so they take top
// precedence per viper's own resolution order.
func Load(v *viper.Viper, envFile string) (Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("rconfig: loading %s: %w", envFile, err)
		}
	}
	v.SetEnvPrefix("RDFT")
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 9000)
	v.SetDefault("client_host", "0.0.0.0")
	v.SetDefault("client_port", 0)
	v.SetDefault("storage_base", "./storage")
	v.SetDefault("metrics_addr", "127.0.0.1:9100")
	v.SetDefault("single_segment_size_min", DefaultSingleSegmentSizeMin)
	v.SetDefault("single_segment_size_max", DefaultSingleSegmentSizeMax)
	v.SetDefault("cwnd_start", DefaultCwndStart)
	v.SetDefault("socket_timeout_ms", DefaultSocketTimeout.Milliseconds())
	v.SetDefault("socket_maxsize", DefaultSocketMaxSize)
	v.SetDefault("file_path_max_length", DefaultFilePathMaxLength)
	v.SetDefault("download_workers", DefaultDownloadWorkers)

	cfg := Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		ClientHost:        v.GetString("client_host"),
		ClientPort:        v.GetInt("client_port"),
		StorageBase:       v.GetString("storage_base"),
		MetricsAddr:       v.GetString("metrics_addr"),
		SingleSegmentMin:  v.GetInt("single_segment_size_min"),
		SingleSegmentMax:  v.GetInt("single_segment_size_max"),
		CwndStart:         uint32(v.GetInt("cwnd_start")),
		SocketTimeout:     time.Duration(v.GetInt64("socket_timeout_ms")) * time.Millisecond,
		SocketMaxSize:     v.GetInt("socket_maxsize"),
		FilePathMaxLength: v.GetInt("file_path_max_length"),
		DownloadWorkers:   v.GetInt("download_workers"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SingleSegmentMin <= 0 || c.SingleSegmentMax < c.SingleSegmentMin {
		return fmt.Errorf("rconfig: invalid segment size bounds [%d, %d]", c.SingleSegmentMin, c.SingleSegmentMax)
	}
	if c.CwndStart == 0 {
		return fmt.Errorf("rconfig: cwnd_start must be positive")
	}
	if c.DownloadWorkers <= 0 {
		return fmt.Errorf("rconfig: download_workers must be positive")
	}
	return nil
}
