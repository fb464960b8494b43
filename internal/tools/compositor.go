/*视频合成请求与渲染器选择*/
package tools

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"short-video-workflow/pkg/captions"
)

// 编码默认值
const (
	DefaultCRF         = 8
	DefaultPreset      = "faster"
	DefaultBitrate     = "50M"
	DefaultMusicVolume = 0.15
	DefaultMusicDir    = "assets/background_music"

	DefaultWidth  = 1080
	DefaultHeight = 1920
	DefaultFPS    = 30
)

// CompositionRequest 一次视频合成的全部输入，
// 合成器不读取任何全局状态，所有选项都在请求里显式给出
type CompositionRequest struct {
	VideoPath  string // 主背景视频
	AudioPath  string // 旁白音频
	OutputPath string

	CaptionSpans []captions.CaptionSpan
	WordSpans    []captions.WordSpan // 非空时优先渲染卡拉OK

	// 为nil时在背景视频内随机选取起点
	StartOffset *float64

	CRF     int
	Preset  string
	Bitrate string // 为空时不限码率

	SplitScreen bool
	SecondVideo string

	AddMusic    bool
	MusicVolume float64
	MusicDir    string
	MusicPath   string // 显式指定时跳过目录随机选取

	TailPadding float64

	Width  int
	Height int
	FPS    int
}

// Compositor 视频合成器，两种后端实现同一契约
type Compositor interface {
	Compose(req *CompositionRequest) (string, error)
}

// Normalize 填充未设置的字段为默认值
func (req *CompositionRequest) Normalize() {
	if req.Width <= 0 {
		req.Width = DefaultWidth
	}
	if req.Height <= 0 {
		req.Height = DefaultHeight
	}
	if req.FPS <= 0 {
		req.FPS = DefaultFPS
	}
	if req.CRF <= 0 {
		req.CRF = DefaultCRF
	}
	if req.Preset == "" {
		req.Preset = DefaultPreset
	}
	if req.MusicVolume <= 0 {
		req.MusicVolume = DefaultMusicVolume
	}
	if req.MusicDir == "" {
		req.MusicDir = DefaultMusicDir
	}
	if req.TailPadding < 0 {
		req.TailPadding = 0
	}
}

// Validate 在调起任何外部进程之前校验请求
func (req *CompositionRequest) Validate() error {
	if req.VideoPath == "" {
		return &InvalidInputError{Reason: "未指定背景视频"}
	}
	if req.AudioPath == "" {
		return &InvalidInputError{Reason: "未指定旁白音频"}
	}
	if req.OutputPath == "" {
		return &InvalidInputError{Reason: "未指定输出路径"}
	}
	if req.SplitScreen && req.SecondVideo == "" {
		return &InvalidInputError{Reason: "分屏模式需要第二个背景视频"}
	}
	if _, err := os.Stat(req.VideoPath); err != nil {
		return &InvalidInputError{Reason: fmt.Sprintf("背景视频不存在: %s", req.VideoPath)}
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return &InvalidInputError{Reason: fmt.Sprintf("旁白音频不存在: %s", req.AudioPath)}
	}
	if req.SplitScreen {
		if _, err := os.Stat(req.SecondVideo); err != nil {
			return &InvalidInputError{Reason: fmt.Sprintf("第二个背景视频不存在: %s", req.SecondVideo)}
		}
	}
	return nil
}

var musicExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".flac": true,
}

// pickBackgroundMusic 解析请求的背景音乐来源。
// 显式路径优先；否则从目录随机选取一个音频文件。
// 目录缺失、为空或文件不存在时返回空串，合成继续但不配乐。
func pickBackgroundMusic(req *CompositionRequest) string {
	if !req.AddMusic {
		return ""
	}
	if req.MusicPath != "" {
		if _, err := os.Stat(req.MusicPath); err == nil {
			return req.MusicPath
		}
		return ""
	}
	return randomMusicFromDir(req.MusicDir)
}

func randomMusicFromDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if musicExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			candidates = append(candidates, filepath.Join(dir, e.Name()))
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}

// resolveStartOffset 确定背景视频的取片起点。
// 未显式指定时在[0, 时长-1]内均匀随机；视频不足1秒时从头开始。
func resolveStartOffset(offset *float64, videoDuration float64) float64 {
	if offset != nil {
		if *offset < 0 {
			return 0
		}
		return *offset
	}
	if videoDuration > 1.0 {
		return rand.Float64() * (videoDuration - 1.0)
	}
	return 0
}
