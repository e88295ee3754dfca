package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ScriptForge/internal/api"
	"ScriptForge/internal/config"
	"ScriptForge/internal/llm"
	"ScriptForge/internal/llm/ollama"
	"ScriptForge/internal/llm/openai"
	"ScriptForge/internal/observability/alerting"
	"ScriptForge/internal/observability/metrics"
	"ScriptForge/internal/orchestrator"
	"ScriptForge/internal/relay"
	"ScriptForge/internal/roles"
	"ScriptForge/internal/run"
	"ScriptForge/internal/snapshot"
	"ScriptForge/internal/web3"
	"ScriptForge/internal/web3/ethereum"
	"ScriptForge/pkg/logger"
)

// main 是编排守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "配置文件路径，缺省读取 SCRIPTFORGE_CONFIG")
	flag.Parse()

	if err := runDaemon(ctx, config.ResolvePath(*configPath)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("forged 运行失败: %v", err)
	}
}

func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	table, err := loadModelTable(cfg)
	if err != nil {
		return err
	}
	roleSet := roles.NewSet(table)

	engineOpts := []orchestrator.Option{
		orchestrator.WithMaxCycles(cfg.Runtime.MaxCycles),
	}
	if !cfg.Runtime.SnapshotDisabled {
		sink, err := snapshot.NewFileSink(cfg.Runtime.DataDir)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, orchestrator.WithSnapshotSink(sink))
	}
	if cfg.Runtime.InvocationTimeoutSeconds > 0 {
		engineOpts = append(engineOpts,
			orchestrator.WithInvocationTimeout(time.Duration(cfg.Runtime.InvocationTimeoutSeconds)*time.Second))
	}
	engine := orchestrator.New(llmClient, roleSet, engineOpts...)

	store, err := createStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭运行队列失败", slog.Any("error", err))
		}
	}()

	var anchorClient web3.Client
	if anchorCfg, ok, err := resolveAnchor(cfg); err != nil {
		return err
	} else if ok {
		client, err := ethereum.NewClient(ctx, anchorCfg)
		if err != nil {
			// 锚定是可选增强，节点不可达不阻塞启动。
			logger.L().Warn("链上锚定客户端初始化失败", slog.Any("error", err))
		} else {
			anchorClient = client
			defer client.Close()
		}
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	dispatcher := alerting.NewFanout(notifiers...)

	service := run.NewService(store, queue, cfg.Runtime.MaxRetries)
	processorOpts := []run.ProcessorOption{
		run.WithWorkerCount(cfg.Runtime.Workers),
		run.WithAlertDispatcher(dispatcher),
	}
	if anchorClient != nil {
		processorOpts = append(processorOpts, run.WithAnchorClient(anchorClient))
	}
	processor := run.NewProcessor(engine, store, queue, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	serverOpts := []api.Option{}
	if cfg.Server.APIKey != "" {
		serverOpts = append(serverOpts, api.WithAPIKey(cfg.Server.APIKey))
	}
	if cfg.Relay.Target != "" {
		relayHandler, err := relay.New(cfg.Relay.Target)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithRelay(relayHandler))
	}
	server := api.NewServer(cfg.Server.Address, service, serverOpts...)

	logger.L().Info("forged 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Storage.RunStore.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("llm", cfg.LLM.Provider),
	)
	return server.Start(ctx)
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	switch cfg.LLM.Provider {
	case "", "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Timeout: timeout,
		})
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// resolveAnchor 返回锚定客户端配置。rpc_url 直接生效，
// 否则从链定义文件中取 chain 指定的那条。
func resolveAnchor(cfg *config.Config) (ethereum.Config, bool, error) {
	if cfg.Web3.RPCURL != "" {
		return ethereum.Config{
			Name:   "anchor",
			RPCURL: cfg.Web3.RPCURL,
			Notes:  cfg.Web3.Notes,
		}, true, nil
	}
	if cfg.Web3.ChainsPath == "" || cfg.Web3.Chain == "" {
		return ethereum.Config{}, false, nil
	}
	defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainsPath)
	if err != nil {
		return ethereum.Config{}, false, err
	}
	def, ok := defs.Chains[cfg.Web3.Chain]
	if !ok {
		return ethereum.Config{}, false, fmt.Errorf("链定义中不存在 %s", cfg.Web3.Chain)
	}
	return ethereum.Config{
		Name:   cfg.Web3.Chain,
		RPCURL: def.RPCURL,
		Notes:  def.Description,
	}, true, nil
}

func loadModelTable(cfg *config.Config) (*roles.ModelTable, error) {
	if cfg.Roles.ModelTablePath == "" {
		return roles.DefaultModelTable(), nil
	}
	return roles.LoadModelTable(cfg.Roles.ModelTablePath)
}

func createStore(cfg *config.Config) (run.Store, error) {
	switch cfg.Storage.RunStore.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.Storage.RunStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.RunStore.Driver)
	}
}

func createQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(cfg.Queue.Capacity), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:   cfg.Queue.RabbitMQ.URL,
			Queue: cfg.Queue.RabbitMQ.Queue,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
