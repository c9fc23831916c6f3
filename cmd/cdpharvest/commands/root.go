package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cdpharvest/internal/config"
	"cdpharvest/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "cdpharvest",
	Short:        "cdpharvest 通过浏览器调试协议采集分析数据",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
}

// ExecuteContext 执行根命令，失败时以非零状态退出
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Writers:    cfg.Log.Writer,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}
