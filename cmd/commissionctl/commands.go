package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"

	"github.com/spf13/cobra"
)

// errLedgerInconsistent 流水回放与账户余额不一致，退出码非零
var errLedgerInconsistent = errors.New("ledger replay does not match stored balance")

type opener func(configPath string) (*provider.Container, func(), error)

// ctl 子命令共享的运行环境
type ctl struct {
	open       opener
	configPath string
	container  *provider.Container
	closer     func()
}

func newRootCmd(open opener) *cobra.Command {
	c := &ctl{open: open}
	root := &cobra.Command{
		Use:           "commissionctl",
		Short:         "佣金引擎运维命令行",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			container, closer, err := c.open(c.configPath)
			if err != nil {
				return err
			}
			c.container, c.closer = container, closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.closer != nil {
				c.closer()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "配置文件路径，默认搜索 ./config.yml")

	root.AddCommand(
		c.migrateCmd(),
		c.processCmd(),
		c.rejectCmd(),
		c.settleCmd(),
		c.tiersCmd(),
		c.riskCmd(),
		c.verifyLedgerCmd(),
		c.invalidateConfigCmd(),
	)
	return root
}

func (c *ctl) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.container.DB.AutoMigrate(models.AllModels()...); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return printJSON(cmd, map[string]interface{}{"migrated": len(models.AllModels())})
		},
	}
}

func (c *ctl) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <order-id>",
		Short: "计算单个订单的佣金",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0], "order-id")
			if err != nil {
				return err
			}
			result, err := c.container.OrderProcessor.Process(cmd.Context(), orderID)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *ctl) rejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <order-id>",
		Short: "驳回订单仍待结算的佣金",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0], "order-id")
			if err != nil {
				return err
			}
			rejected, err := c.container.AffiliateService.RejectOrderReferrals(orderID, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"order_id": orderID, "rejected": rejected})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "驳回原因")
	return cmd
}

func (c *ctl) settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "结算冷却期已结束的佣金",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.container.SettlementService.SettleDue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *ctl) tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "评估推广等级晋升",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.container.TierEvaluator.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *ctl) riskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "刷新近 24 小时活跃推广账户的风险分",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.container.FraudGuard.RefreshRiskScores(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *ctl) verifyLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-ledger <affiliate-id>",
		Short: "回放推广账户流水并校验余额",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			affiliateID, err := parseID(args[0], "affiliate-id")
			if err != nil {
				return err
			}
			report, err := c.container.AffiliateService.VerifyLedger(affiliateID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Consistent {
				return errLedgerInconsistent
			}
			return nil
		},
	}
}

func (c *ctl) invalidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-config",
		Short: "丢弃缓存的佣金配置快照并重新加载",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configProvider := c.container.ConfigProvider
			if err := configProvider.Invalidate(cmd.Context()); err != nil {
				return err
			}
			snap, err := configProvider.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"version":       snap.Version,
				"rules":         len(snap.Rules),
				"skipped_rules": snap.SkippedRules,
			})
		},
	}
}

func parseID(raw, name string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return uint(id), nil
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
