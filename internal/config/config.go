package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "SCRIPTFORGE_CONFIG"

// Config 描述了服务在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	LLM      LLMConfig      `json:"llm"`
	Roles    RolesConfig    `json:"roles"`
	Web3     Web3Config     `json:"web3"`
	Relay    RelayConfig    `json:"relay"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Logging  LoggingConfig  `json:"logging"`
	Alerting AlertingConfig `json:"alerting"`
}

// AlertingConfig 控制失败告警的通知渠道。日志渠道始终开启。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
	APIKey         string `json:"api_key"`
}

// StorageConfig 统一描述运行存储后端的连接信息。
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store"`
}

// RunStoreConfig 选择运行存储实现。driver 支持 memory 与 mysql。
type RunStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 选择运行队列实现。driver 支持 memory、redis 与 rabbitmq。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Capacity int            `json:"capacity"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 列表队列的连接参数。
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string `json:"provider"`
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RolesConfig 指向角色到模型映射的 YAML 文件，留空使用内置默认表。
type RolesConfig struct {
	ModelTablePath string `json:"model_table_path"`
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。rpc_url 直接指定节点；
// 也可以通过 chains_path 指向链定义文件并用 chain 选取其中一条。
// 两者都留空则不做链上锚定。
type Web3Config struct {
	RPCURL     string `json:"rpc_url"`
	Chain      string `json:"chain"`
	ChainsPath string `json:"chains_path"`
	Notes      string `json:"notes"`
}

// RelayConfig 控制推理转发的目标地址。留空则不挂载转发接口。
type RelayConfig struct {
	Target string `json:"target"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir                  string `json:"data_dir"`
	MaxCycles                int    `json:"max_cycles"`
	MaxRetries               int    `json:"max_retries"`
	Workers                  int    `json:"workers"`
	SnapshotDisabled         bool   `json:"snapshot_disabled"`
	InvocationTimeoutSeconds int    `json:"invocation_timeout_seconds"`
}

// LoggingConfig 映射到 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level       string             `json:"level"`
	Format      string             `json:"format"`
	OutputPaths []string           `json:"output_paths"`
	Audit       AuditLoggingConfig `json:"audit"`
}

// AuditLoggingConfig 控制审计日志输出。
type AuditLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// ResolvePath 返回配置文件路径：显式参数优先，其次环境变量，最后默认值。
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(EnvConfigPath); fromEnv != "" {
		return fromEnv
	}
	return "configs/scriptforge.json"
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值，
// 并把相对路径解析到配置文件所在目录。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 256
	}
	if c.Queue.Redis.Addr == "" {
		c.Queue.Redis.Addr = "127.0.0.1:6379"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 120
	}

	if c.Roles.ModelTablePath != "" && !filepath.IsAbs(c.Roles.ModelTablePath) {
		c.Roles.ModelTablePath = filepath.Join(baseDir, c.Roles.ModelTablePath)
	}

	if c.Web3.ChainsPath != "" && !filepath.IsAbs(c.Web3.ChainsPath) {
		c.Web3.ChainsPath = filepath.Join(baseDir, c.Web3.ChainsPath)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.MaxCycles <= 0 {
		c.Runtime.MaxCycles = 10
	}
	if c.Runtime.MaxRetries <= 0 {
		c.Runtime.MaxRetries = 3
	}
	if c.Runtime.Workers <= 0 {
		c.Runtime.Workers = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled {
		if c.Logging.Audit.Path == "" {
			c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
		} else if !filepath.IsAbs(c.Logging.Audit.Path) {
			c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
		}
	}
}
