package tools

import (
	"fmt"
	"strings"
)

// InvalidInputError 请求参数缺失或矛盾，在调用任何外部进程之前检出
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("输入参数非法: %s", e.Reason)
}

// SynthesisError 所有语音合成端点均失败，聚合各端点的错误信息
type SynthesisError struct {
	Chunk    string
	Attempts []string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("所有TTS端点均失败 (文本片段 %q): %s", e.Chunk, strings.Join(e.Attempts, "; "))
}

// RenderError 编码器退出非零或未产出有效文件，携带其诊断输出
type RenderError struct {
	Stage  string
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("视频渲染失败 (%s): %v\n%s", e.Stage, e.Err, e.Output)
	}
	return fmt.Sprintf("视频渲染失败 (%s): %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
