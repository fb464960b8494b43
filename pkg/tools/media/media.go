/*媒体时长探测*/
package media

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaError 媒体文件不可读或时长非法
type MediaError struct {
	Path string
	Err  error
}

func (e *MediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("媒体文件不可用 %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("媒体文件不可用 %s", e.Path)
}

func (e *MediaError) Unwrap() error { return e.Err }

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// VideoInfo 视频文件的基本属性
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
}

// ProbeDuration 读取媒体文件声明的时长（秒）。
// 文件缺失、不可解析或时长不为正时返回 MediaError。
func ProbeDuration(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, &MediaError{Path: path, Err: err}
	}

	data, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, &MediaError{Path: path, Err: fmt.Errorf("ffprobe执行失败: %w", err)}
	}

	var result probeFormat
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return 0, &MediaError{Path: path, Err: fmt.Errorf("解析探测输出失败: %w", err)}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, &MediaError{Path: path, Err: fmt.Errorf("解析时长失败: %w", err)}
	}
	if duration <= 0 {
		return 0, &MediaError{Path: path, Err: fmt.Errorf("时长非法: %f", duration)}
	}

	return duration, nil
}

// ProbeVideo 读取视频文件的时长和画面尺寸。
// 没有视频流或尺寸非法时返回 MediaError。
func ProbeVideo(path string) (*VideoInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &MediaError{Path: path, Err: err}
	}

	data, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, &MediaError{Path: path, Err: fmt.Errorf("ffprobe执行失败: %w", err)}
	}

	var result probeFormat
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, &MediaError{Path: path, Err: fmt.Errorf("解析探测输出失败: %w", err)}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return nil, &MediaError{Path: path, Err: fmt.Errorf("时长非法: %q", result.Format.Duration)}
	}

	for _, s := range result.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return &VideoInfo{Duration: duration, Width: s.Width, Height: s.Height}, nil
		}
	}
	return nil, &MediaError{Path: path, Err: fmt.Errorf("未找到视频流")}
}
