/*视频合成 - ffmpeg滤镜图后端*/
package tools

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"short-video-workflow/pkg/tools/media"
)

// FFmpegCompositor 单次ffmpeg调用完成裁剪、分屏、字幕烧录和混音的主渲染路径
type FFmpegCompositor struct {
	logger     *zap.Logger
	subtitles  *SubtitleTrackBuilder
	ffmpegPath string
}

// NewFFmpegCompositor 创建滤镜图合成器
func NewFFmpegCompositor(logger *zap.Logger) *FFmpegCompositor {
	return &FFmpegCompositor{
		logger:     logger,
		subtitles:  NewSubtitleTrackBuilder(logger),
		ffmpegPath: "ffmpeg",
	}
}

// Compose 执行合成，返回输出文件路径
func (fc *FFmpegCompositor) Compose(req *CompositionRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	audioDur, err := media.ProbeDuration(req.AudioPath)
	if err != nil {
		return "", err
	}
	duration := audioDur + req.TailPadding
	if duration < 0.01 {
		duration = 0.01
	}

	videoDur, err := media.ProbeDuration(req.VideoPath)
	if err != nil {
		return "", err
	}
	start1 := resolveStartOffset(req.StartOffset, videoDur)

	start2 := 0.0
	if req.SplitScreen {
		if v2Dur, err := media.ProbeDuration(req.SecondVideo); err == nil {
			start2 = resolveStartOffset(nil, v2Dur)
		}
	}

	musicPath := pickBackgroundMusic(req)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	assPath := filepath.Join(filepath.Dir(req.OutputPath), fmt.Sprintf("subs_%s.ass", uuid.New().String()))
	hasSubs, err := fc.subtitles.WriteASS(assPath, req.CaptionSpans, req.WordSpans, req.Width, req.Height)
	if err != nil {
		return "", err
	}
	defer func() {
		if hasSubs {
			os.Remove(assPath)
		}
	}()

	args := buildFFmpegArgs(req, ffmpegPlan{
		duration:  duration,
		start1:    start1,
		start2:    start2,
		musicPath: musicPath,
		assPath:   assPath,
		hasSubs:   hasSubs,
	})

	fc.logger.Info("开始ffmpeg合成",
		zap.Float64("时长", duration),
		zap.Bool("分屏", req.SplitScreen),
		zap.Bool("字幕", hasSubs),
		zap.Bool("配乐", musicPath != ""),
	)

	cmd := exec.Command(fc.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &RenderError{
			Stage:  "ffmpeg",
			Output: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return "", &RenderError{
			Stage:  "ffmpeg",
			Output: "进程退出正常但输出文件缺失或为空",
		}
	}

	fc.logger.Info("ffmpeg合成完成",
		zap.String("输出文件", req.OutputPath),
		zap.Int64("大小", info.Size()),
	)
	return req.OutputPath, nil
}

// ffmpegPlan 单次调用的已决参数
type ffmpegPlan struct {
	duration  float64
	start1    float64
	start2    float64
	musicPath string
	assPath   string
	hasSubs   bool
}

// buildFFmpegArgs 构造完整的ffmpeg参数列表
func buildFFmpegArgs(req *CompositionRequest, plan ffmpegPlan) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	args = append(args, "-stream_loop", "-1", "-i", req.VideoPath)
	hasVideo2 := req.SplitScreen && req.SecondVideo != ""
	if hasVideo2 {
		args = append(args, "-stream_loop", "-1", "-i", req.SecondVideo)
	}

	idxAudio := 1
	if hasVideo2 {
		idxAudio = 2
	}
	args = append(args, "-i", req.AudioPath)

	idxMusic := -1
	if plan.musicPath != "" {
		idxMusic = idxAudio + 1
		args = append(args, "-stream_loop", "-1", "-i", plan.musicPath)
	}

	filter := buildFilterComplex(req, plan, idxAudio, idxMusic)
	args = append(args, "-filter_complex", filter)
	args = append(args, "-map", "[vout]", "-map", "[aout]")

	args = append(args, "-c:v", "libx264", "-preset", req.Preset, "-crf", strconv.Itoa(req.CRF))
	if req.Bitrate != "" {
		args = append(args, "-b:v", req.Bitrate)
	}
	args = append(args, "-pix_fmt", "yuv420p", "-profile:v", "high", "-movflags", "+faststart")
	args = append(args, "-c:a", "aac", "-b:a", "192k")

	threads := runtime.NumCPU()
	if threads > 8 {
		threads = 8
	}
	if threads < 1 {
		threads = 1
	}
	args = append(args, "-threads", strconv.Itoa(threads))
	args = append(args, req.OutputPath)
	return args
}

// buildFilterComplex 构造filter_complex表达式：
// 每路视频 trim → 重置时间戳 → 覆盖式缩放 → 居中裁剪 → 统一帧率，
// 分屏时取各路下方3/4的画面带，缩放至半高后垂直拼接
func buildFilterComplex(req *CompositionRequest, plan ffmpegPlan, idxAudio, idxMusic int) string {
	vChain := func(label string, start float64) string {
		return fmt.Sprintf(
			"%strim=start=%g:duration=%g,setpts=PTS-STARTPTS,"+
				"scale=%d:%d:force_original_aspect_ratio=increase,"+
				"crop=%d:%d,fps=%d",
			label, start, plan.duration,
			req.Width, req.Height,
			req.Width, req.Height, req.FPS,
		)
	}

	var vf []string
	if req.SplitScreen && req.SecondVideo != "" {
		vf = append(vf, vChain("[0:v]", plan.start1)+"[v1]")
		vf = append(vf, vChain("[1:v]", plan.start2)+"[v2]")
		vf = append(vf, fmt.Sprintf("[v1]crop=iw:ih*3/4:0:ih*1/4,scale=%d:%d[top]", req.Width, req.Height/2))
		vf = append(vf, fmt.Sprintf("[v2]crop=iw:ih*3/4:0:ih*1/4,scale=%d:%d[bot]", req.Width, req.Height/2))
		vf = append(vf, "[top][bot]vstack=inputs=2[vbase]")
	} else {
		vf = append(vf, vChain("[0:v]", plan.start1)+"[vbase]")
	}

	vIn := "[vbase]"
	if req.TailPadding > 0 {
		vf = append(vf, fmt.Sprintf("[vbase]tpad=stop_mode=clone:stop_duration=%g[vpad]", req.TailPadding))
		vIn = "[vpad]"
	}

	if plan.hasSubs {
		vf = append(vf, fmt.Sprintf("%ssubtitles='%s'[vout]", vIn, escapeFilterPath(plan.assPath)))
	} else {
		vf = append(vf, vIn+"null[vout]")
	}

	var af []string
	af = append(af, fmt.Sprintf("[%d:a]apad=pad_dur=%g,atrim=0:%g,asetpts=N/SR/TB[atts]",
		idxAudio, req.TailPadding, plan.duration))
	if idxMusic >= 0 {
		af = append(af, fmt.Sprintf("[%d:a]atrim=0:%g,asetpts=N/SR/TB,volume=%g[abg]",
			idxMusic, plan.duration, req.MusicVolume))
		af = append(af, "[atts][abg]amix=inputs=2:duration=longest:dropout_transition=0[aout]")
	} else {
		af = append(af, "[atts]anull[aout]")
	}

	return strings.Join(append(vf, af...), ";")
}

// escapeFilterPath 转义subtitles滤镜内嵌路径的保留字符
func escapeFilterPath(p string) string {
	s := strings.ReplaceAll(p, "\\", "/")
	s = strings.ReplaceAll(s, ":", `\:`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return s
}
