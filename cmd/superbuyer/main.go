package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/buyer"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/history"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/ocr"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/price"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/runner"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/store"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "config.json", "配置文件路径")
		tasksPath   = flag.String("tasks", "tasks.json", "任务文件路径")
		goodsPath   = flag.String("goods", "goods.json", "商品目录路径")
		historyPath = flag.String("history", "history.db", "历史数据库路径")
		logFile     = flag.String("log-file", "", "日志文件路径 (为空只输出到控制台)")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Super Buyer v%s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	}

	if err := run(*configPath, *tasksPath, *goodsPath, *historyPath, *logFile); err != nil {
		logger.Error("运行失败: %v", err)
		os.Exit(1)
	}
}

func run(configPath, tasksPath, goodsPath, historyPath, logFile string) error {
	// 配置
	mgr := config.NewManager(configPath)
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := mgr.Get()

	// 数据
	tasks := store.NewTaskStore(tasksPath)
	if err := tasks.Load(); err != nil {
		return fmt.Errorf("加载任务失败: %w", err)
	}
	goods := store.NewGoodsStore(goodsPath)
	if err := goods.Load(); err != nil {
		return fmt.Errorf("加载商品目录失败: %w", err)
	}

	// 日志
	logger.Default().SetLevel(logger.ParseLevel(tasks.File().LogLevel))
	if logFile != "" {
		if err := logger.Default().SetFile(true, logFile); err != nil {
			logger.Warn("日志文件不可用: %v", err)
		}
	}
	defer logger.Default().Close()

	// 历史落盘
	hist, err := history.Open(context.Background(), historyPath)
	var sink buyer.Sink
	if err != nil {
		logger.Warn("历史数据库不可用，本次运行不记录历史: %v", err)
		sink = buyer.NopSink{}
	} else {
		defer hist.Close()
		sink = hist
	}

	// OCR 引擎链
	engine, err := ocr.Build(cfg)
	if err != nil {
		return fmt.Errorf("初始化 OCR 失败: %w", err)
	}

	// 屏幕能力
	robot := screen.NewRobot()
	defer robot.Close()

	reader := price.NewReader(robot, engine, cfg)
	r := runner.New(cfg, tasks, goods, robot, reader, sink)

	// Ctrl+C 走协作式停止，循环在下一个检查点退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，正在停止...")
		r.Control().Stop()
	}()

	logger.Info("Super Buyer v%s 启动", Version)
	return r.Run()
}
