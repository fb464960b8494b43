/*语音识别（词级时间戳）*/
package tools

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"short-video-workflow/pkg/captions"
)

// ASRProcessor 通过faster-whisper提取旁白音频的词级时间戳，
// 用于逐词卡拉OK字幕。识别不可用时调用方退回按比例分配。
type ASRProcessor struct {
	logger   *zap.Logger
	model    string
	language string
}

// NewASRProcessor 创建语音识别器。model为空时使用base模型，language为空时识别英文。
func NewASRProcessor(logger *zap.Logger, model, language string) *ASRProcessor {
	if model == "" {
		model = "base"
	}
	if language == "" {
		language = "en"
	}
	return &ASRProcessor{logger: logger, model: model, language: language}
}

type asrWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type asrSegment struct {
	Words []asrWord `json:"words"`
}

type asrOutput struct {
	Success  bool         `json:"success"`
	Error    string       `json:"error,omitempty"`
	Segments []asrSegment `json:"segments"`
}

// asrScript 在子进程中跑faster-whisper，结果以JSON打到stdout
const asrScript = `
import json
import sys

try:
    from faster_whisper import WhisperModel

    model = WhisperModel(sys.argv[2], device="cpu", compute_type="int8")
    segments, _ = model.transcribe(
        sys.argv[1],
        language=sys.argv[3],
        word_timestamps=True,
        vad_filter=True,
    )

    out = []
    for segment in segments:
        words = []
        for w in segment.words or []:
            words.append({"word": w.word, "start": w.start, "end": w.end})
        out.append({"words": words})

    print(json.dumps({"success": True, "segments": out}))
except Exception as e:
    print(json.dumps({"success": False, "error": str(e)}))
    sys.exit(1)
`

// TranscribeWords 识别音频并返回词级时间戳。
// originalText不为空时把识别出的时间轴对齐回原文用词。
// 识别环境缺失或未产出任何词时返回错误，由调用方降级。
func (ap *ASRProcessor) TranscribeWords(audioPath, originalText string) ([]captions.WordStamp, error) {
	ap.logger.Info("开始语音识别",
		zap.String("音频文件", audioPath),
		zap.String("model", ap.model),
		zap.String("language", ap.language),
	)

	cmd := exec.Command("python3", "-c", asrScript, audioPath, ap.model, ap.language)
	output, err := cmd.CombinedOutput()

	words, parseErr := parseASROutput(output)
	if parseErr != nil {
		if err != nil {
			return nil, fmt.Errorf("语音识别调用失败: %w", err)
		}
		return nil, parseErr
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("语音识别未产出任何词")
	}

	ap.logger.Info("语音识别完成", zap.Int("词数", len(words)))

	if originalText != "" {
		words = captions.AlignWordsToOriginal(words, originalText)
	}
	return words, nil
}

// parseASROutput 解析识别子进程的JSON输出。
// stdout可能混入库的告警行，从第一个'{'开始解析。
func parseASROutput(output []byte) ([]captions.WordStamp, error) {
	text := string(output)
	idx := strings.Index(text, "{")
	if idx < 0 {
		return nil, fmt.Errorf("语音识别输出无法解析: %s", strings.TrimSpace(text))
	}

	var result asrOutput
	if err := json.Unmarshal([]byte(text[idx:]), &result); err != nil {
		return nil, fmt.Errorf("解析语音识别输出失败: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("语音识别失败: %s", result.Error)
	}

	var words []captions.WordStamp
	for _, segment := range result.Segments {
		for _, w := range segment.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			words = append(words, captions.WordStamp{
				Word:  word,
				Start: w.Start,
				End:   w.End,
			})
		}
	}
	return words, nil
}
