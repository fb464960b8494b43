/*生成记录*/
package database

import (
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Generation 一次视频生成的记录，流水线结束后写入，核心逻辑不回读
type Generation struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   MyTime         `json:"created_at"`
	UpdatedAt   MyTime         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	TextExcerpt string         `json:"text_excerpt"` // 文案摘要
	Voice       string         `json:"voice"`
	VideoFile   string         `json:"video_file"`
	Duration    float64        `json:"duration"` // 旁白时长（秒）
	Karaoke     bool           `json:"karaoke"`
	SplitScreen bool           `json:"split_screen"`
	Status      string         `json:"status" gorm:"default:pending"` // completed / failed
	Error       string         `json:"error,omitempty"`
}

// Ledger 生成记录数据库管理器
type Ledger struct {
	DB *gorm.DB
}

// OpenLedger 打开指定路径的记录数据库并自动建表
func OpenLedger(dbPath string) (*Ledger, error) {
	newLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := fmt.Sprintf("%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	ledger := &Ledger{DB: db}
	if err := ledger.Migrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return ledger, nil
}

// OpenDefaultLedger 在系统应用数据目录下打开记录数据库
func OpenDefaultLedger() (*Ledger, error) {
	dbPath, err := defaultDatabasePath()
	if err != nil {
		return nil, err
	}
	return OpenLedger(dbPath)
}

// Migrate 执行数据库迁移
func (l *Ledger) Migrate() error {
	return l.DB.AutoMigrate(&Generation{})
}

// Close 关闭数据库连接
func (l *Ledger) Close() error {
	sqlDB, err := l.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record 写入一条生成记录
func (l *Ledger) Record(g *Generation) error {
	return l.DB.Create(g).Error
}

// Recent 按时间倒序返回最近的生成记录
func (l *Ledger) Recent(limit int) ([]Generation, error) {
	var records []Generation
	err := l.DB.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// CountByStatus 统计各状态的记录数
func (l *Ledger) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := l.DB.Model(&Generation{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// defaultDatabasePath 数据库文件放在各系统惯用的应用数据目录
func defaultDatabasePath() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("获取当前用户失败: %w", err)
	}

	var appDataPath string
	switch runtime.GOOS {
	case "windows":
		appDataPath = filepath.Join(usr.HomeDir, "AppData", "Local", "short-video-workflow")
	case "darwin":
		appDataPath = filepath.Join(usr.HomeDir, "Library", "Application Support", "short-video-workflow")
	case "linux":
		appDataPath = filepath.Join(usr.HomeDir, ".local", "share", "short-video-workflow")
	default:
		return "", fmt.Errorf("不支持的操作系统: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(appDataPath, 0755); err != nil {
		return "", fmt.Errorf("创建应用数据目录失败: %w", err)
	}
	return filepath.Join(appDataPath, "database.sqlite"), nil
}
