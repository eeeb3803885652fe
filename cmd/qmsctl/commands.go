package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// render 按 --json 输出原始结构，否则输出表格
func render(cmd *cobra.Command, opts *cliOptions, v interface{}, fill func(tw table.Writer)) error {
	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	fill(tw)
	tw.Render()
	return nil
}

func newClassifyCmd(opts *cliOptions) *cobra.Command {
	var actual, target float64
	var category string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "按目标值判定KPI等级",
		RunE: func(cmd *cobra.Command, args []string) error {
			if category != "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				res, err := cfg.Quality.RateCalculator().Evaluate(category, actual)
				if err != nil {
					return err
				}
				return render(cmd, opts, res, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"类别", "实际", "目标", "单位", "等级"})
					tw.AppendRow(table.Row{res.Category, res.Value, res.Target, res.Unit, res.Label})
				})
			}
			if !cmd.Flags().Changed("target") {
				return fmt.Errorf("--target or --category is required")
			}
			c := engine.Classify(actual, target)
			return render(cmd, opts, c, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"实际", "目标", "等级"})
				tw.AppendRow(table.Row{actual, target, c.Label})
			})
		},
	}
	cmd.Flags().Float64Var(&actual, "actual", 0, "实际值")
	cmd.Flags().Float64Var(&target, "target", 0, "目标值")
	cmd.Flags().StringVar(&category, "category", "", "KPI类别，使用配置中的目标值")
	cmd.MarkFlagRequired("actual")
	return cmd
}

func newEscalateCmd(opts *cliOptions) *cobra.Command {
	var obs engine.Observation
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "判定安灯升级级别",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			policy, err := cfg.Quality.EscalationPolicy()
			if err != nil {
				return err
			}
			tier := policy.Classify(obs)
			if opts.jsonOutput {
				return render(cmd, opts, map[string]interface{}{"observation": obs, "tier": tier}, nil)
			}
			if tier == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "无需升级")
				return nil
			}
			return render(cmd, opts, tier, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"级别", "触发条件", "响应时限(分钟)", "必要措施"})
				tw.AppendRow(table.Row{tier.Level, tier.TriggeredBy, tier.ResponseDeadlineMinutes, strings.Join(tier.RequiredActions, "\n")})
			})
		},
	}
	cmd.Flags().IntVar(&obs.ConsecutiveSameCause, "consecutive", 0, "同一原因连续缺陷数")
	cmd.Flags().Float64Var(&obs.ReworkRatePerHour, "rate", 0, "每小时返工率(%)")
	cmd.Flags().Float64Var(&obs.LineStopMinutes, "line-stop", 0, "停线分钟数")
	return cmd
}

func newPPMCmd(opts *cliOptions) *cobra.Command {
	var defects, shipped int64
	var category string
	cmd := &cobra.Command{
		Use:   "ppm",
		Short: "计算索赔PPM",
		RunE: func(cmd *cobra.Command, args []string) error {
			if defects < 0 || shipped < 0 {
				return fmt.Errorf("quantities must not be negative")
			}
			if category == "" {
				ppm := engine.ComputePPM(defects, shipped)
				return render(cmd, opts, map[string]int64{"defects": defects, "shipped": shipped, "ppm": ppm}, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"缺陷数", "发货数", "PPM"})
					tw.AppendRow(table.Row{defects, shipped, ppm})
				})
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			res, err := cfg.Quality.RateCalculator().ClaimPPM(category, defects, shipped)
			if err != nil {
				return err
			}
			return render(cmd, opts, res, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"类别", "缺陷数", "发货数", "PPM", "目标", "等级"})
				tw.AppendRow(table.Row{res.Category, defects, shipped, res.Value, res.Target, res.Label})
			})
		},
	}
	cmd.Flags().Int64Var(&defects, "defects", 0, "缺陷数量")
	cmd.Flags().Int64Var(&shipped, "shipped", 0, "发货数量")
	cmd.Flags().StringVar(&category, "category", "", "客户类别（automotive/industrial/machining）")
	cmd.MarkFlagRequired("defects")
	cmd.MarkFlagRequired("shipped")
	return cmd
}

func newTargetsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "列出KPI目标",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			targets := cfg.Quality.RateCalculator().Targets()
			return render(cmd, opts, targets, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"类别", "目标", "单位", "策略"})
				for _, t := range targets {
					tw.AppendRow(table.Row{t.Category, t.Target, t.Unit, t.Strategy})
				}
			})
		},
	}
}

func newParetoCmd(opts *cliOptions) *cobra.Command {
	var from, to string
	q := service.AnalysisQuery{}
	cmd := &cobra.Command{
		Use:   "pareto",
		Short: "按缺陷代码输出柏拉图",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if q.From, err = parseDate(from, false); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if q.To, err = parseDate(to, true); err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			report, err := service.NewAnalysisService(repository.NewRepositories(db)).Pareto(cmd.Context(), q)
			if err != nil {
				return err
			}

			vital := make(map[string]bool, len(report.VitalFew))
			for _, it := range report.VitalFew {
				vital[it.Code] = true
			}
			return render(cmd, opts, report, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"#", "缺陷代码", "名称", "类别", "数量", "占比%", "累计%", ""})
				for i, it := range report.Items {
					mark := ""
					if vital[it.Code] {
						mark = "*"
					}
					tw.AppendRow(table.Row{i + 1, it.Code, report.CodeNames[it.Code], it.Category, it.Qty,
						fmt.Sprintf("%.2f", it.PctOfTotal), fmt.Sprintf("%.2f", it.CumulativePct), mark})
				}
				tw.AppendFooter(table.Row{"", "合计", "", "", report.TotalQty, "", "", ""})
				tw.SetColumnConfigs([]table.ColumnConfig{
					{Number: 5, Align: text.AlignRight},
					{Number: 6, Align: text.AlignRight},
					{Number: 7, Align: text.AlignRight},
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "开始日期（yyyy-mm-dd 或 RFC3339）")
	cmd.Flags().StringVar(&to, "to", "", "结束日期，日期格式包含当天")
	cmd.Flags().StringVar(&q.LineID, "line", "", "产线")
	cmd.Flags().StringVar(&q.Shift, "shift", "", "班次 A/B")
	cmd.Flags().StringVar(&q.PartNumber, "part", "", "料号")
	cmd.Flags().StringVar(&q.DefectType, "type", "", "缺陷类型 rework/scrap")
	return cmd
}

// parseDate 解析 RFC3339 或 yyyy-mm-dd，日期格式的结束时间取次日零点
func parseDate(s string, end bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}
