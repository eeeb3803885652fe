package main

import (
	"fmt"
	"os"

	"github.com/bitfantasy/nimo-qms/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openDB 可在测试中替换
var openDB = func(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

type cliOptions struct {
	configPath string
	jsonOutput bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "qmsctl",
		Short:         "质量核算与安灯分级命令行工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认 ./configs/config.yaml）")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "以 JSON 输出")

	root.AddCommand(
		newClassifyCmd(opts),
		newEscalateCmd(opts),
		newPPMCmd(opts),
		newTargetsCmd(opts),
		newParetoCmd(opts),
	)
	return root
}

func (o *cliOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load()
}
