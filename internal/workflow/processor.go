package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"short-video-workflow/internal/tools"
	"short-video-workflow/pkg/captions"
	"short-video-workflow/pkg/database"
	"short-video-workflow/pkg/tools/media"
)

// GenerateParams 单次视频生成的全部参数
type GenerateParams struct {
	Text            string
	Voice           string
	BackgroundVideo string
	SecondVideo     string
	SplitScreen     bool
	Karaoke         bool     // 逐词卡拉OK字幕，否则整句字幕
	StartOffset     *float64 // 为nil时随机选取
	Renderer        string   // "ffmpeg" / "frames"，为空时ffmpeg优先、失败降级
	AddMusic        bool
	MusicVolume     float64
	MusicDir        string
	MusicPath       string
	TailPadding     float64
	CRF             int
	Preset          string
	Bitrate         string
	OutputDir       string
	OutputName      string // 为空时自动生成
}

// GenerateResult 生成结果
type GenerateResult struct {
	VideoFile      string  `json:"video_file"`
	AudioFile      string  `json:"audio_file"`
	Duration       float64 `json:"duration"`
	Renderer       string  `json:"renderer"`
	Karaoke        bool    `json:"karaoke"`
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

// Processor 视频生成流水线：合成旁白 → 分配字幕时间轴 → 合成视频。
// 单次调用内严格串行；不同调用使用独立的输出路径时可并发执行。
type Processor struct {
	logger     *zap.Logger
	ttsTool    *tools.TTSProcessor
	asrTool    *tools.ASRProcessor
	ffmpegComp tools.Compositor
	frameComp  tools.Compositor
	ledger     *database.Ledger

	progressMu sync.Mutex
	progress   BatchProgress
}

// Options 流水线的环境配置，与单次请求的参数分开
type Options struct {
	TTSEndpoints []string
	ASRModel     string
	ASRLanguage  string
	Ledger       *database.Ledger // 可为nil，生成记录不落库
}

func NewProcessor(logger *zap.Logger, opts Options) (*Processor, error) {
	return &Processor{
		logger:     logger,
		ttsTool:    tools.NewTTSProcessor(logger, opts.TTSEndpoints),
		asrTool:    tools.NewASRProcessor(logger, opts.ASRModel, opts.ASRLanguage),
		ffmpegComp: tools.NewFFmpegCompositor(logger),
		frameComp:  tools.NewFrameCompositor(logger),
		ledger:     opts.Ledger,
	}, nil
}

// GenerateVideo 生成单条视频
func (p *Processor) GenerateVideo(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	startedAt := time.Now()

	if params.Text == "" {
		return nil, &tools.InvalidInputError{Reason: "未提供文案"}
	}
	if params.BackgroundVideo == "" {
		return nil, &tools.InvalidInputError{Reason: "未提供背景视频"}
	}
	if params.OutputDir == "" {
		params.OutputDir = "output"
	}

	p.logger.Info("开始生成视频",
		zap.Int("文案长度", len([]rune(params.Text))),
		zap.Bool("卡拉OK", params.Karaoke),
		zap.Bool("分屏", params.SplitScreen),
	)

	// 1. 合成旁白
	audioFile, err := p.ttsTool.Synthesize(params.Text, params.Voice, params.OutputDir)
	if err != nil {
		p.record(params, "", 0, "failed", err)
		return nil, fmt.Errorf("旁白合成失败: %w", err)
	}

	// 2. 探测旁白时长
	duration, err := media.ProbeDuration(audioFile)
	if err != nil {
		p.record(params, "", 0, "failed", err)
		return nil, err
	}

	// 3. 分配字幕时间轴
	var captionSpans []captions.CaptionSpan
	var wordSpans []captions.WordSpan
	if params.Karaoke {
		wordSpans = p.karaokeSpans(audioFile, params.Text, duration)
	} else {
		captionSpans = captions.AllocateCaptionSpans(params.Text, duration)
	}

	// 4. 合成视频
	outputName := params.OutputName
	if outputName == "" {
		outputName = fmt.Sprintf("video_%s.mp4", uuid.New().String())
	}
	req := &tools.CompositionRequest{
		VideoPath:    params.BackgroundVideo,
		AudioPath:    audioFile,
		OutputPath:   filepath.Join(params.OutputDir, outputName),
		CaptionSpans: captionSpans,
		WordSpans:    wordSpans,
		StartOffset:  params.StartOffset,
		CRF:          params.CRF,
		Preset:       params.Preset,
		Bitrate:      params.Bitrate,
		SplitScreen:  params.SplitScreen,
		SecondVideo:  params.SecondVideo,
		AddMusic:     params.AddMusic,
		MusicVolume:  params.MusicVolume,
		MusicDir:     params.MusicDir,
		MusicPath:    params.MusicPath,
		TailPadding:  params.TailPadding,
	}

	videoFile, renderer, err := p.compose(req, params.Renderer)
	if err != nil {
		p.record(params, "", duration, "failed", err)
		return nil, err
	}

	elapsed := time.Since(startedAt).Seconds()
	p.record(params, videoFile, duration, "completed", nil)
	p.logger.Info("视频生成完成",
		zap.String("输出文件", videoFile),
		zap.String("渲染器", renderer),
		zap.Float64("耗时", elapsed),
	)

	return &GenerateResult{
		VideoFile:      videoFile,
		AudioFile:      audioFile,
		Duration:       duration,
		Renderer:       renderer,
		Karaoke:        params.Karaoke,
		Status:         "completed",
		Message:        "视频生成完成",
		ProcessingTime: elapsed,
	}, nil
}

// karaokeSpans 优先走语音识别取精确的词级时间轴，
// 识别不可用或失败时静默退回按字符长度比例分配
func (p *Processor) karaokeSpans(audioFile, text string, duration float64) []captions.WordSpan {
	words, err := p.asrTool.TranscribeWords(audioFile, text)
	if err != nil {
		p.logger.Warn("语音识别不可用，退回比例分配", zap.Error(err))
		return captions.AllocateKaraokeWordSpans(text, duration)
	}
	return captions.WordsToKaraokeSpans(words)
}

// compose 选择渲染后端。未显式指定时滤镜图优先，
// 整条流水线失败则换逐帧后端完整重渲一次。
func (p *Processor) compose(req *tools.CompositionRequest, renderer string) (string, string, error) {
	switch renderer {
	case "frames", "frame-compositing":
		out, err := p.frameComp.Compose(req)
		return out, "frames", err
	case "ffmpeg":
		out, err := p.ffmpegComp.Compose(req)
		return out, "ffmpeg", err
	}

	out, err := p.ffmpegComp.Compose(req)
	if err == nil {
		return out, "ffmpeg", nil
	}
	p.logger.Warn("滤镜图后端失败，降级到逐帧合成", zap.Error(err))
	out, err = p.frameComp.Compose(req)
	return out, "frames", err
}

// record 把生成结果写入记录表，未配置时跳过
func (p *Processor) record(params GenerateParams, videoFile string, duration float64, status string, genErr error) {
	if p.ledger == nil {
		return
	}
	errMsg := ""
	if genErr != nil {
		errMsg = genErr.Error()
	}
	if err := p.ledger.Record(&database.Generation{
		TextExcerpt: excerpt(params.Text, 120),
		Voice:       params.Voice,
		VideoFile:   videoFile,
		Duration:    duration,
		Karaoke:     params.Karaoke,
		SplitScreen: params.SplitScreen,
		Status:      status,
		Error:       errMsg,
	}); err != nil {
		p.logger.Warn("写入生成记录失败", zap.Error(err))
	}
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
