/*ASS字幕轨生成*/
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"short-video-workflow/pkg/captions"
)

// SubtitleTrackBuilder 把字幕段渲染为滤镜图后端可烧录的ASS字幕轨
type SubtitleTrackBuilder struct {
	logger *zap.Logger
}

// NewSubtitleTrackBuilder 创建字幕轨生成器
func NewSubtitleTrackBuilder(logger *zap.Logger) *SubtitleTrackBuilder {
	return &SubtitleTrackBuilder{
		logger: logger,
	}
}

// WriteASS 写出ASS字幕文件。逐词条目优先于句级字幕。
// 两类条目都为空时不写文件并返回false，调用方据此跳过字幕烧录。
func (sb *SubtitleTrackBuilder) WriteASS(assPath string, captionSpans []captions.CaptionSpan, wordSpans []captions.WordSpan, width, height int) (bool, error) {
	if len(captionSpans) == 0 && len(wordSpans) == 0 {
		return false, nil
	}

	captionX := width / 2
	captionY := int(float64(height) * 0.78)
	centerX := width / 2
	centerY := height / 2

	captionFontSize := scaledFontSize(height, 0.035)
	karaokeFontSize := scaledFontSize(height, 0.040)

	var buf strings.Builder
	buf.WriteString("[Script Info]\n")
	buf.WriteString("ScriptType: v4.00+\n")
	buf.WriteString(fmt.Sprintf("PlayResX: %d\n", width))
	buf.WriteString(fmt.Sprintf("PlayResY: %d\n", height))
	buf.WriteString("ScaledBorderAndShadow: yes\n")
	buf.WriteString("\n[V4+ Styles]\n")
	buf.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	buf.WriteString(fmt.Sprintf("Style: Default,Arial,%d,&H00FFFFFF,&H000000FF,&H00000000,&H64000000,-1,0,0,0,100,100,0,0,1,4,0,5,10,10,10,1\n", captionFontSize))
	buf.WriteString(fmt.Sprintf("Style: Karaoke,Arial,%d,&H00FFFFFF,&H000000FF,&H00000000,&H64000000,-1,0,0,0,100,100,0,0,1,4,0,5,10,10,10,1\n", karaokeFontSize))
	buf.WriteString("\n[Events]\n")
	buf.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	lineCount := 0
	if len(wordSpans) > 0 {
		tag := fmt.Sprintf(`{\an5\pos(%d,%d)\fs%d\bord4\shad0}`, centerX, centerY, karaokeFontSize)
		for _, w := range wordSpans {
			txt := assEscape(strings.TrimSpace(w.Text))
			if txt == "" {
				continue
			}
			buf.WriteString(fmt.Sprintf("Dialogue: 0,%s,%s,Karaoke,,0,0,0,,%s%s\n",
				assTime(w.Start), assTime(w.End), tag, txt))
			lineCount++
		}
	} else {
		tag := fmt.Sprintf(`{\an5\pos(%d,%d)\fs%d\bord4\shad0}`, captionX, captionY, captionFontSize)
		for _, span := range captionSpans {
			txt := assEscape(strings.TrimSpace(span.Text))
			if txt == "" {
				continue
			}
			buf.WriteString(fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s%s\n",
				assTime(span.Start), assTime(span.End), tag, txt))
			lineCount++
		}
	}

	if err := os.MkdirAll(filepath.Dir(assPath), 0755); err != nil {
		return false, fmt.Errorf("创建字幕目录失败: %w", err)
	}
	if err := os.WriteFile(assPath, []byte(buf.String()), 0644); err != nil {
		return false, fmt.Errorf("写入ASS文件失败: %w", err)
	}

	sb.logger.Debug("ASS字幕轨已生成",
		zap.String("文件", assPath),
		zap.Int("行数", lineCount),
	)
	return true, nil
}

// scaledFontSize 按帧高比例取字号，下限28px
func scaledFontSize(height int, ratio float64) int {
	size := int(float64(height) * ratio)
	if size < 28 {
		size = 28
	}
	return size
}

// assTime 格式化为 H:MM:SS.cc，厘秒封顶99
func assTime(t float64) string {
	if t < 0 {
		t = 0
	}
	total := int(t)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	cs := int((t-float64(total))*100.0 + 0.5)
	if cs >= 100 {
		cs = 99
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// assEscape 转义ASS保留字符，换行转为强制换行标记
func assEscape(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", `\{`)
	s = strings.ReplaceAll(s, "}", `\}`)
	s = strings.ReplaceAll(s, "\n", `\N`)
	return s
}
