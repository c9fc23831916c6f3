package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cdpharvest/internal/stats"
	"cdpharvest/pkg/api"
)

var (
	runDevtools string
	runDuration time.Duration
	runListOnly bool
	runStart    string
	runMaxPages int
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&runDevtools, "devtools", "", "浏览器调试端点，覆盖 devtools.url")
	f.DurationVar(&runDuration, "duration", 0, "采集总时长预算，覆盖 collect.duration")
	f.BoolVar(&runListOnly, "list-only", false, "只执行列表阶段")
	f.StringVar(&runStart, "start-cursor", "", "从指定分页游标继续")
	f.IntVar(&runMaxPages, "max-pages", 0, "最多请求的列表页数")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--config <file>] [--devtools <url>] [--duration <d>] [--list-only]",
	Short: "连接浏览器会话并执行一次采集",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runDevtools != "" {
			cfg.DevTools.URL = runDevtools
		}
		if runDuration > 0 {
			cfg.Collect.Duration = runDuration
		}
		if cmd.Flags().Changed("list-only") {
			cfg.Collect.ListOnly = runListOnly
		}
		if runStart != "" {
			cfg.Collect.StartCursor = runStart
		}
		if runMaxPages > 0 {
			cfg.Collect.MaxPages = runMaxPages
		}

		l := newLogger(cfg)
		st := stats.New()
		ctx := cmd.Context()
		if cfg.Metrics.Addr != "" {
			mctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if err := st.Serve(mctx, cfg.Metrics.Addr, l); err != nil {
					l.Err(err, "指标服务退出", "addr", cfg.Metrics.Addr)
				}
			}()
		}

		svc := api.NewService(api.Options{Logger: l, Stats: st, Out: os.Stdout})
		res, err := svc.Run(ctx, cfg)
		if res != nil {
			l.Info("采集结束", "records", len(res.Records), "pages", res.Pages, "partial", res.Partial)
			if res.Partial {
				fmt.Fprintf(os.Stderr, "partial result: %s\n", res.Error)
			}
		}
		return err
	},
}
