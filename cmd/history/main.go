package main

import (
	"flag"
	"fmt"

	"github.com/spf13/viper"

	"short-video-workflow/pkg/database"
)

// 查看最近的视频生成记录
func main() {
	var (
		limit  = flag.Int("n", 10, "显示条数")
		dbPath = flag.String("db", "", "记录数据库路径，默认系统应用数据目录")
	)
	flag.Parse()

	viper.SetConfigFile("config.yaml")
	if viper.ReadInConfig() == nil && *dbPath == "" {
		*dbPath = viper.GetString("database.path")
	}

	var ledger *database.Ledger
	var err error
	if *dbPath != "" {
		ledger, err = database.OpenLedger(*dbPath)
	} else {
		ledger, err = database.OpenDefaultLedger()
	}
	if err != nil {
		fmt.Printf("无法打开记录数据库: %v\n", err)
		return
	}
	defer ledger.Close()

	counts, err := ledger.CountByStatus()
	if err != nil {
		fmt.Printf("统计失败: %v\n", err)
		return
	}
	fmt.Printf("生成记录统计: 成功 %d 条，失败 %d 条\n\n", counts["completed"], counts["failed"])

	records, err := ledger.Recent(*limit)
	if err != nil {
		fmt.Printf("查询失败: %v\n", err)
		return
	}
	for _, r := range records {
		fmt.Printf("[%s] %s\n", r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  - 文案: %s\n", r.TextExcerpt)
		if r.VideoFile != "" {
			fmt.Printf("  - 输出: %s (%.1f 秒)\n", r.VideoFile, r.Duration)
		}
		if r.Error != "" {
			fmt.Printf("  - 错误: %s\n", r.Error)
		}
	}
}
