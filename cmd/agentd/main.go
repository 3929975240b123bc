package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/agent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/api"
	"github.com/Himanshu-is-code/AMD-HACK/internal/auth"
	"github.com/Himanshu-is-code/AMD-HACK/internal/config"
	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/knowledge"
	"github.com/Himanshu-is-code/AMD-HACK/internal/llm"
	"github.com/Himanshu-is-code/AMD-HACK/internal/llm/ollama"
	"github.com/Himanshu-is-code/AMD-HACK/internal/observability/alerting"
	"github.com/Himanshu-is-code/AMD-HACK/internal/task"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// main 是助手守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("ASSISTANT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentd.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
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
	defer func() {
		_ = logger.Sync()
	}()

	authSvc, err := auth.NewService(auth.Config{
		Mode:  auth.Mode(cfg.Auth.Mode),
		Token: cfg.Auth.Token,
	})
	if err != nil {
		return err
	}

	// 初始化任务存储。
	store, err := createStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	// 初始化恢复队列。
	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭恢复队列失败", slog.Any("error", err))
		}
	}()

	probe := connectivity.NewDialProbe(
		cfg.Connectivity.ProbeAddress,
		time.Duration(cfg.Connectivity.ProbeTimeoutSeconds)*time.Second,
	)

	generator, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	var knowledgeProvider knowledge.Provider
	if cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		knowledgeProvider = provider
	}

	// Google Workspace 的具体接入由部署方注入，默认只注册兜底卡片。
	// 专用卡片在有对应客户端时通过 registry.Register 挂载。
	general := agent.NewGeneralCard(generator, knowledgeProvider)
	registry := agent.NewRegistry(general)

	alerter := alerting.NewFanout(&alerting.LogNotifier{})

	runner := task.NewRunner(store, registry, queue,
		task.WithWorkerCount(cfg.ResumeQueue.Workers),
		task.WithExecuteTimeout(time.Duration(cfg.Tasks.ExecuteTimeoutSeconds)*time.Second),
		task.WithAlertDispatcher(alerter),
	)

	orchestrator := task.NewOrchestrator(store, intent.NewRuleClassifier(), runner, probe,
		task.WithMaxRetries(cfg.Tasks.MaxRetries),
		task.WithCredentialVerifier(authSvc),
	)

	monitor := task.NewMonitor(store, probe, queue,
		task.WithMonitorInterval(time.Duration(cfg.Connectivity.IntervalSeconds)*time.Second),
	)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	go func() {
		if err := runner.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务执行器异常退出", slog.Any("error", err))
		}
	}()
	go func() {
		if err := monitor.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("连通性监视器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, orchestrator, probe,
		api.WithAuthService(authSvc),
		api.WithRequestTimeout(time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second),
	)

	logger.L().Info("agentd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Store.Driver),
		slog.String("queue", cfg.ResumeQueue.Driver),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createStore(cfg *config.Config) (task.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "file":
		return task.NewFileStore(cfg.Store.Path)
	case "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(cfg.Store.MySQL.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Store.Driver)
	}
}

func createQueue(cfg *config.Config) (task.Queue, error) {
	switch strings.ToLower(cfg.ResumeQueue.Driver) {
	case "", "memory":
		return task.NewMemoryQueue(cfg.ResumeQueue.Buffer), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:  cfg.ResumeQueue.Redis.Addr,
			Password: cfg.ResumeQueue.Redis.Password,
			DB:       cfg.ResumeQueue.Redis.DB,
			Queue:    cfg.ResumeQueue.Redis.Key,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:   cfg.ResumeQueue.RabbitMQ.URL,
			Queue: cfg.ResumeQueue.RabbitMQ.Queue,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.ResumeQueue.Driver)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.Ollama.BaseURL,
			Model:   cfg.LLM.Ollama.Model,
			Timeout: time.Duration(cfg.LLM.Ollama.TimeoutSeconds) * time.Second,
		})
	case "none":
		// 完全离线部署可以不接大模型，计划生成退化为模板文本。
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}
