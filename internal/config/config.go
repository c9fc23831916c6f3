package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"cdpharvest/pkg/domain"
)

const EnvPrefix = "CDPHARVEST"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version" ignored:"true"`

	DevTools  DevTools       `yaml:"devtools" split_words:"true"`
	Endpoints Endpoints      `yaml:"endpoints" split_words:"true"`
	Facets    []domain.Facet `yaml:"facets" ignored:"true"`
	Collect   Collect        `yaml:"collect" split_words:"true"`
	Replay    Replay         `yaml:"replay" split_words:"true"`
	Sqlite    Sqlite         `yaml:"sqlite" split_words:"true"`
	Log       Log            `yaml:"log" split_words:"true"`
	Report    Report         `yaml:"report" split_words:"true"`
	Metrics   Metrics        `yaml:"metrics" split_words:"true"`
}

// DevTools 浏览器调试端点
type DevTools struct {
	URL            string        `yaml:"url" split_words:"true"`
	TargetMatch    string        `yaml:"target_match" split_words:"true"`
	CommandTimeout time.Duration `yaml:"command_timeout" split_words:"true"`
	ChannelPattern string        `yaml:"channel_pattern" split_words:"true"`
	ListPage       string        `yaml:"list_page" split_words:"true"` // 含 {channel} 占位符
}

// Endpoints 目标接口的载荷约定
type Endpoints struct {
	List         string   `yaml:"list" split_words:"true"`
	IDKey        string   `yaml:"id_key" split_words:"true"`
	CursorField  string   `yaml:"cursor_field" split_words:"true"`
	NextCursor   string   `yaml:"next_cursor" split_words:"true"`
	ItemKeys     []string `yaml:"item_keys" split_words:"true"`
	StatusField  string   `yaml:"status_field" split_words:"true"`
	VisibleValue string   `yaml:"visible_value" split_words:"true"`
}

// Collect 采集流程参数
type Collect struct {
	ListOnly            bool          `yaml:"list_only" split_words:"true"`
	PageDelay           time.Duration `yaml:"page_delay" split_words:"true"`
	EntityDelay         time.Duration `yaml:"entity_delay" split_words:"true"`
	NavigationSettle    time.Duration `yaml:"navigation_settle" split_words:"true"`
	FacetCaptureTimeout time.Duration `yaml:"facet_capture_timeout" split_words:"true"`
	Duration            time.Duration `yaml:"duration" split_words:"true"`
	StartCursor         string        `yaml:"start_cursor" split_words:"true"`
	MaxPages            int           `yaml:"max_pages" split_words:"true"`
}

// Replay 离线重放参数
type Replay struct {
	ListTimeout  time.Duration `yaml:"list_timeout" split_words:"true"`
	FacetTimeout time.Duration `yaml:"facet_timeout" split_words:"true"`
	DebugDir     string        `yaml:"debug_dir" split_words:"true"`
}

type Sqlite struct {
	Dsn    string `yaml:"dsn" split_words:"true"`
	Prefix string `yaml:"prefix" split_words:"true"`
}

type Log struct {
	Level      string   `yaml:"level" split_words:"true"`
	Writer     []string `yaml:"writer" split_words:"true"`
	File       string   `yaml:"file" split_words:"true"`
	MaxSizeMB  int      `yaml:"max_size_mb" split_words:"true"`
	MaxBackups int      `yaml:"max_backups" split_words:"true"`
	MaxAgeDays int      `yaml:"max_age_days" split_words:"true"`
}

type Report struct {
	JSONPath string `yaml:"json_path" split_words:"true"`
	Table    bool   `yaml:"table" split_words:"true"`
}

type Metrics struct {
	Addr string `yaml:"addr" split_words:"true"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		DevTools: DevTools{
			URL:            "http://127.0.0.1:9222",
			TargetMatch:    "studio.youtube.com",
			CommandTimeout: 5 * time.Second,
			ChannelPattern: `studio\.youtube\.com/channel/([A-Za-z0-9_-]+)`,
			ListPage:       "https://studio.youtube.com/channel/{channel}/videos/upload",
		},
		Endpoints: Endpoints{
			List:         "youtubei/v1/creator/list_creator_videos",
			IDKey:        "videoId",
			CursorField:  "pageToken",
			NextCursor:   "nextPageToken",
			ItemKeys:     []string{"videos", "video", "items"},
			StatusField:  "privacy",
			VisibleValue: "VIDEO_PRIVACY_PUBLIC",
		},
		Facets: []domain.Facet{
			{
				Name:        "reach_viewers",
				Navigation:  "https://studio.youtube.com/video/{id}/analytics/tab-reach_viewers/period-default",
				Endpoint:    "youtubei/v1/yta_web/get_screen",
				Description: "impressions and click-through rate",
			},
			{
				Name:        "interest_viewers",
				Navigation:  "https://studio.youtube.com/video/{id}/analytics/tab-interest_viewers/period-default",
				Endpoint:    "youtubei/v1/yta_web/get_cards",
				Description: "views, watch time and subscriber change",
			},
		},
		Collect: Collect{
			PageDelay:           time.Second,
			EntityDelay:         2 * time.Second,
			NavigationSettle:    8 * time.Second,
			FacetCaptureTimeout: 20 * time.Second,
			Duration:            300 * time.Second,
		},
		Replay: Replay{
			ListTimeout:  30 * time.Second,
			FacetTimeout: 15 * time.Second,
		},
		Sqlite: Sqlite{
			Dsn:    "db.sqlite3",
			Prefix: "cdpharvest_",
		},
		Log: Log{
			Level:      "info",
			Writer:     []string{"console", "file"},
			File:       "logs/cdpharvest.log",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Report: Report{
			JSONPath: "analytics_{run}.json",
			Table:    true,
		},
	}
}

// Load 依次应用默认值、YAML 文件（可选）与环境变量
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.DevTools.URL == "" {
		errs = append(errs, errors.New("devtools.url is required"))
	}
	if c.DevTools.CommandTimeout <= 0 {
		errs = append(errs, errors.New("devtools.command_timeout must be positive"))
	}
	if c.Endpoints.List == "" || c.Endpoints.IDKey == "" {
		errs = append(errs, errors.New("endpoints.list and endpoints.id_key are required"))
	}
	if c.Endpoints.CursorField == "" || c.Endpoints.NextCursor == "" {
		errs = append(errs, errors.New("endpoints cursor fields are required"))
	}
	if c.Replay.ListTimeout <= 0 || c.Replay.FacetTimeout <= 0 {
		errs = append(errs, errors.New("replay timeouts must be positive"))
	}
	if c.Collect.Duration <= 0 {
		errs = append(errs, errors.New("collect.duration must be positive"))
	}
	if !c.Collect.ListOnly {
		if len(c.Facets) == 0 {
			errs = append(errs, errors.New("at least one facet is required unless collect.list_only is set"))
		}
		seen := make(map[string]bool, len(c.Facets))
		for i, f := range c.Facets {
			if f.Name == "" || f.Endpoint == "" || f.Navigation == "" {
				errs = append(errs, fmt.Errorf("facets[%d]: name, endpoint and navigation are required", i))
			}
			if seen[f.Name] {
				errs = append(errs, fmt.Errorf("facets[%d]: duplicate name %q", i, f.Name))
			}
			seen[f.Name] = true
		}
		if c.Collect.FacetCaptureTimeout <= 0 {
			errs = append(errs, errors.New("collect.facet_capture_timeout must be positive"))
		}
	}
	return errors.Join(errs...)
}
