package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"eval-cache/configs"
	"eval-cache/internal/cache"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/infrastructure/stores"
	"eval-cache/pkg/logger"
)

// openCache 按配置打开文档存储并构建缓存，返回的函数负责关闭存储
func openCache(ctx context.Context, configPath string) (*cache.ResultCache, func(), error) {
	cfg, err := configs.Load(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	// 标准输出只留给 JSON 结果
	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Output: "stderr",
		Format: cfg.Logging.Format,
	})

	store, err := stores.NewDocumentStoreFactory(log).CreateDocumentStore(ctx, &cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("文档存储关闭失败", "error", err)
		}
	}
	return cache.New(store, &cfg.Cache, log), closeFn, nil
}

// parseObject 解析命令行传入的 JSON 对象，以 @ 开头时从文件读取
func parseObject(name, raw string) (map[string]any, error) {
	data := []byte(raw)
	if len(raw) > 0 && raw[0] == '@' {
		b, err := os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", name, err)
		}
		data = b
	}

	return models.DecodeObject(data, name)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLookupCmd(configPath *string) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "按键查找缓存结果，命中时命中次数加一",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseObject("key", key)
			if err != nil {
				return err
			}
			c, closeFn, err := openCache(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := c.Lookup(cmd.Context(), k)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "查询键（JSON 对象，或 @文件）")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newSaveCmd(configPath *string) *cobra.Command {
	var key, response string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "写入一条计算结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseObject("key", key)
			if err != nil {
				return err
			}
			r, err := parseObject("response", response)
			if err != nil {
				return err
			}
			c, closeFn, err := openCache(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := c.Save(cmd.Context(), k, r)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "请求键（JSON 对象，或 @文件）")
	cmd.Flags().StringVarP(&response, "response", "r", "", "计算结果（JSON 对象，或 @文件）")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func newGetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "按ID读取缓存项，不计入命中",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openCache(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			entry, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "显示缓存统计信息",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openCache(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := c.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
