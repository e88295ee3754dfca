package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ScriptForge/internal/llm/ollama"
	"ScriptForge/internal/orchestrator"
	"ScriptForge/internal/roles"
	"ScriptForge/internal/snapshot"
	"ScriptForge/pkg/logger"
)

// defaultRequest 在未提供请求时用于演示完整的编排流程。
const defaultRequest = "Create a Python script using asyncio to fetch the content of three URLs in parallel and print their status codes and content length."

// main 是一次性编排命令的入口：执行单个请求并打印产出脚本。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := flag.String("ollama", "", "Ollama 服务地址，缺省 http://localhost:11434")
	tablePath := flag.String("roles", "", "角色模型映射 YAML，缺省使用内置映射")
	dataDir := flag.String("data", ".forge", "周期状态快照目录")
	maxCycles := flag.Int("max-cycles", 0, "决策周期上限，缺省 10")
	showChain := flag.Bool("chain", false, "打印完整的指纹链")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "warn", Format: "text"}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	request := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if request == "" {
		fmt.Println("[*] 未提供请求，使用默认演示请求。")
		request = defaultRequest
	}

	if err := runOnce(ctx, request, *baseURL, *tablePath, *dataDir, *maxCycles, *showChain); err != nil {
		log.Fatalf("forge 执行失败: %v", err)
	}
}

func runOnce(ctx context.Context, request, baseURL, tablePath, dataDir string, maxCycles int, showChain bool) error {
	client, err := ollama.NewClient(ollama.Config{BaseURL: baseURL})
	if err != nil {
		return err
	}

	table := roles.DefaultModelTable()
	if tablePath != "" {
		table, err = roles.LoadModelTable(tablePath)
		if err != nil {
			return err
		}
	}

	opts := []orchestrator.Option{}
	if maxCycles > 0 {
		opts = append(opts, orchestrator.WithMaxCycles(maxCycles))
	}
	if dataDir != "" {
		sink, err := snapshot.NewFileSink(dataDir)
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithSnapshotSink(sink))
	}

	engine := orchestrator.New(client, roles.NewSet(table), opts...)

	started := time.Now()
	outcome, err := engine.Run(ctx, request)
	if err != nil {
		return err
	}

	fmt.Printf("[*] 编排结束：%d 个周期，耗时 %s，完成=%v\n",
		outcome.Cycles, time.Since(started).Round(time.Millisecond), outcome.Completed)
	fmt.Printf("[*] 指纹链：genesis=%s head=%s（%d 条记录）\n",
		shortHash(outcome.GenesisHash), shortHash(outcome.ChainHead), len(outcome.Chain))
	if showChain {
		for i, entry := range outcome.Chain {
			fmt.Printf("    %3d  %-17s %s\n", i+1, entry.Role, entry.Hash)
		}
	}
	fmt.Println()
	fmt.Println(outcome.Deliverable())
	return nil
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
