package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"short-video-workflow/internal/workflow"
	"short-video-workflow/pkg/database"
	"short-video-workflow/pkg/tools/file"
)

func main() {
	var (
		text       = flag.String("text", "", "单条文案")
		textsFile  = flag.String("texts", "", "批量文案文件（CSV取首列，其他按行）")
		video      = flag.String("video", "", "背景视频路径")
		video2     = flag.String("video2", "", "第二背景视频路径（分屏用）")
		split      = flag.Bool("split", false, "上下分屏")
		karaoke    = flag.Bool("karaoke", false, "逐词卡拉OK字幕")
		voice      = flag.String("voice", "", "语音代码，默认en_us_002")
		renderer   = flag.String("renderer", "", "渲染后端: ffmpeg / frames，默认自动")
		music      = flag.Bool("music", false, "添加背景音乐")
		startAt    = flag.Float64("start", -1, "背景视频起点（秒），默认随机")
		outputDir  = flag.String("output", "", "输出目录")
		outputName = flag.String("name", "", "输出文件名")
		resultFile = flag.String("result", "", "批量结果JSON输出路径")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	if *text == "" && *textsFile == "" {
		fmt.Fprintln(os.Stderr, "用法: 通过 -text 指定单条文案，或 -texts 指定批量文案文件")
		flag.Usage()
		os.Exit(2)
	}
	if *video == "" {
		*video = viper.GetString("video.background")
	}

	var ledger *database.Ledger
	if viper.GetBool("database.enabled") {
		var err error
		if p := viper.GetString("database.path"); p != "" {
			ledger, err = database.OpenLedger(p)
		} else {
			ledger, err = database.OpenDefaultLedger()
		}
		if err != nil {
			logger.Warn("打开记录数据库失败，生成记录不落库", zap.Error(err))
		} else {
			defer ledger.Close()
		}
	}

	processor, err := workflow.NewProcessor(logger, workflow.Options{
		TTSEndpoints: viper.GetStringSlice("tts.endpoints"),
		ASRModel:     viper.GetString("asr.model"),
		ASRLanguage:  viper.GetString("asr.language"),
		Ledger:       ledger,
	})
	if err != nil {
		logger.Fatal("创建工作流处理器失败", zap.Error(err))
	}

	params := workflow.GenerateParams{
		Voice:           *voice,
		BackgroundVideo: *video,
		SecondVideo:     *video2,
		SplitScreen:     *split,
		Karaoke:         *karaoke,
		Renderer:        *renderer,
		AddMusic:        *music,
		MusicVolume:     viper.GetFloat64("music.volume"),
		MusicDir:        viper.GetString("music.dir"),
		TailPadding:     viper.GetFloat64("video.tail_padding"),
		CRF:             viper.GetInt("video.crf"),
		Preset:          viper.GetString("video.preset"),
		Bitrate:         viper.GetString("video.bitrate"),
		OutputDir:       *outputDir,
		OutputName:      *outputName,
	}
	if params.Voice == "" {
		params.Voice = viper.GetString("tts.voice")
	}
	if params.OutputDir == "" {
		params.OutputDir = viper.GetString("video.output_dir")
	}
	if *startAt >= 0 {
		params.StartOffset = startAt
	}
	if err := file.EnsureDir(params.OutputDir); err != nil {
		logger.Fatal("准备输出目录失败", zap.Error(err))
	}

	ctx := context.Background()

	if *textsFile != "" {
		results, err := processor.BatchGenerate(ctx, *textsFile, params)
		if err != nil {
			logger.Fatal("批量生成失败", zap.Error(err))
		}
		if *resultFile != "" {
			if err := file.SaveJSON(*resultFile, results); err != nil {
				logger.Warn("写入结果文件失败", zap.Error(err))
			}
		}
		logger.Info("批量生成完成", zap.Int("成功条数", len(results)))
		return
	}

	params.Text = *text
	result, err := processor.GenerateVideo(ctx, params)
	if err != nil {
		logger.Fatal("视频生成失败", zap.Error(err))
	}
	fmt.Println(result.VideoFile)
}

// loadConfig 加载配置文件 - 首先尝试当前工作目录，然后尝试可执行文件目录
func loadConfig(logger *zap.Logger) {
	wd, _ := os.Getwd()
	configPath := filepath.Join(wd, "config.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		exe, exeErr := os.Executable()
		if exeErr == nil {
			configPath = filepath.Join(filepath.Dir(exe), "config.yaml")
		}
	}

	viper.SetConfigFile(configPath)

	viper.SetDefault("tts.voice", "en_us_002")
	viper.SetDefault("asr.model", "base")
	viper.SetDefault("asr.language", "en")
	viper.SetDefault("video.crf", 8)
	viper.SetDefault("video.preset", "faster")
	viper.SetDefault("video.bitrate", "50M")
	viper.SetDefault("video.tail_padding", 0.0)
	viper.SetDefault("video.output_dir", "output")
	viper.SetDefault("music.dir", "assets/background_music")
	viper.SetDefault("music.volume", 0.15)
	viper.SetDefault("database.enabled", true)

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("读取配置文件失败，使用默认配置",
			zap.String("configPath", configPath),
			zap.Error(err),
		)
		return
	}
	logger.Info("配置文件加载成功", zap.String("path", configPath))
}
