package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/format"
	"bbkexplorer/internal/search"
)

const queryTimeout = 30 * time.Second

// withClient 创建运行环境后执行一次查询
func withClient(fn func(ctx context.Context, e *env) error) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	return fn(ctx, e)
}

func newSearchCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "解析查询对应的页面路由",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if offline {
				logger := logrus.New()
				logger.SetOutput(os.Stderr)
				route, ok := search.NewResolver(nil, logger).Resolve(context.Background(), query)
				if !ok {
					return fmt.Errorf("查询不能为空")
				}
				return printJSON(route)
			}
			return withClient(func(ctx context.Context, e *env) error {
				route, ok := search.NewResolver(e.client, e.logger).Resolve(ctx, query)
				if !ok {
					return fmt.Errorf("查询不能为空")
				}
				return printJSON(route)
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "只按文本模式判断，不访问上游")
	return cmd
}

func newBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <height|hash|latest>",
		Short: "查询区块",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, e *env) error {
				block, err := e.client.GetBlock(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(block)
			})
		},
	}
}

func newTxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx <txid>",
		Short: "查询交易",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, e *env) error {
				tx, err := e.client.GetTransaction(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(tx)
			})
		},
	}
}

func newAddressCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "address <address>",
		Short: "查询地址余额和交易历史",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, e *env) error {
				addr, err := e.client.GetAddress(ctx, args[0], page, limit)
				if err != nil {
					return err
				}
				return printJSON(addr)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "页码")
	cmd.Flags().IntVar(&limit, "limit", 20, "每页交易数")
	return cmd
}

func newLatestCmd() *cobra.Command {
	var count int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "列出最新区块",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, e *env) error {
				blocks, err := e.client.GetLatestBlocks(ctx, count)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(blocks)
				}

				now := time.Now()
				fmt.Printf("%-10s %-20s %-6s %-10s %s\n", "HEIGHT", "HASH", "TXS", "SIZE", "AGE")
				for _, b := range blocks {
					fmt.Printf("%-10s %-20s %-6d %-10s %s\n",
						format.FormatNumber(b.Height),
						format.FormatHash(b.Hash, 8),
						b.TxCount,
						format.FormatBytes(b.Size),
						format.FormatTimeAgo(b.Timestamp, now))
				}
				if avg := derive.AverageBlockTime(blocks); avg > 0 {
					fmt.Printf("\n平均出块时间: %.1fs\n", avg)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "区块数量")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以JSON输出")
	return cmd
}
