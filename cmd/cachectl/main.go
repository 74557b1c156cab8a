// cachectl 评估结果缓存的命令行工具，直接连接配置中的文档存储
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "查询和写入评估结果缓存",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("EVALCACHE_CONFIG"), "配置文件路径")
	root.AddCommand(
		newLookupCmd(&configPath),
		newSaveCmd(&configPath),
		newGetCmd(&configPath),
		newStatsCmd(&configPath),
	)
	return root
}
