/*语音合成*/
package tools

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// 单次合成请求的文本上限，超长文本按句切块后分别合成
const ttsChunkLimit = 200

// 合成结果的最小可信大小，低于该值视为端点返回了坏数据
const ttsMinOutputBytes = 1024

// Voices 可用的语音代码
var Voices = map[string]string{
	"en_us_001": "英文女声",
	"en_us_002": "英文女声（默认）",
	"en_us_006": "英文男声",
	"en_us_009": "英文男声（低沉）",
	"en_uk_001": "英式男声",
	"en_au_001": "澳式女声",
}

// DefaultVoice 默认语音
const DefaultVoice = "en_us_002"

// TTSProcessor 语音合成器，按顺序尝试多个镜像端点
type TTSProcessor struct {
	logger     *zap.Logger
	endpoints  []string
	httpClient *http.Client
}

// NewTTSProcessor 创建语音合成器。endpoints为空时使用默认镜像列表。
func NewTTSProcessor(logger *zap.Logger, endpoints []string) *TTSProcessor {
	if len(endpoints) == 0 {
		endpoints = []string{
			"https://tiktok-tts.weilnet.workers.dev/api/generation",
			"https://gesserit.co/api/tiktok-tts",
		}
	}
	return &TTSProcessor{
		logger:    logger,
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type ttsResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Synthesize 把文本合成为一段连续的旁白音频，返回输出文件路径。
// 超过200字符的文本按句子边界切块分别合成，再按顺序无缝拼接，
// 下游的字幕时间轴分配依赖这条音轨连续且无间隙。
func (tp *TTSProcessor) Synthesize(text, voice, outDir string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &InvalidInputError{Reason: "合成文本为空"}
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	chunks := splitTextForTTS(text, ttsChunkLimit)
	tp.logger.Info("开始语音合成",
		zap.Int("文本长度", len([]rune(text))),
		zap.Int("分块数", len(chunks)),
		zap.String("voice", voice),
	)

	id := uuid.New().String()
	outputFile := filepath.Join(outDir, fmt.Sprintf("tts_%s.mp3", id))

	var chunkFiles []string
	defer func() {
		for _, f := range chunkFiles {
			os.Remove(f)
		}
	}()

	for i, chunk := range chunks {
		audio, err := tp.synthesizeChunk(chunk, voice)
		if err != nil {
			return "", err
		}
		chunkFile := filepath.Join(outDir, fmt.Sprintf("tts_chunk_%s_%03d.mp3", id, i))
		if err := os.WriteFile(chunkFile, audio, 0644); err != nil {
			return "", fmt.Errorf("写入分块音频失败: %w", err)
		}
		chunkFiles = append(chunkFiles, chunkFile)
	}

	if len(chunkFiles) == 1 {
		if err := os.Rename(chunkFiles[0], outputFile); err != nil {
			return "", fmt.Errorf("移动音频文件失败: %w", err)
		}
		chunkFiles = nil
	} else {
		if err := tp.concatChunks(chunkFiles, outputFile); err != nil {
			return "", err
		}
	}

	info, err := os.Stat(outputFile)
	if err != nil {
		return "", &SynthesisError{Chunk: text, Attempts: []string{fmt.Sprintf("输出文件缺失: %v", err)}}
	}
	if info.Size() < ttsMinOutputBytes {
		os.Remove(outputFile)
		return "", &SynthesisError{Chunk: text, Attempts: []string{fmt.Sprintf("输出文件过小: %d 字节", info.Size())}}
	}

	tp.logger.Info("语音合成完成",
		zap.String("输出文件", outputFile),
		zap.Int64("大小", info.Size()),
	)
	return outputFile, nil
}

// synthesizeChunk 对单个文本块依次尝试各镜像端点，第一个成功者胜出
func (tp *TTSProcessor) synthesizeChunk(chunk, voice string) ([]byte, error) {
	var attempts []string
	for _, endpoint := range tp.endpoints {
		audio, err := tp.callEndpoint(endpoint, chunk, voice)
		if err == nil {
			return audio, nil
		}
		tp.logger.Warn("TTS端点调用失败",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		attempts = append(attempts, fmt.Sprintf("%s: %v", endpoint, err))
	}
	return nil, &SynthesisError{Chunk: chunk, Attempts: attempts}
}

func (tp *TTSProcessor) callEndpoint(endpoint, chunk, voice string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{Text: chunk, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	resp, err := tp.httpClient.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP状态码 %d", resp.StatusCode)
	}

	var result ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if result.Data == "" {
		if result.Error != "" {
			return nil, fmt.Errorf("端点返回错误: %s", result.Error)
		}
		return nil, fmt.Errorf("端点未返回音频数据")
	}

	audio, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, fmt.Errorf("解码音频数据失败: %w", err)
	}
	return audio, nil
}

// concatChunks 用concat分离器按顺序拼接分块音频
func (tp *TTSProcessor) concatChunks(chunkFiles []string, outputFile string) error {
	listFile := outputFile + ".txt"
	var list strings.Builder
	for _, f := range chunkFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		list.WriteString(fmt.Sprintf("file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)))
	}
	if err := os.WriteFile(listFile, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("写入拼接清单失败: %w", err)
	}
	defer os.Remove(listFile)

	err := ffmpeg.Input(listFile, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(outputFile, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().Silent(true).Run()
	if err != nil {
		return fmt.Errorf("拼接分块音频失败: %w", err)
	}
	return nil
}

// splitTextForTTS 按句子边界切块，每块不超过limit个字符。
// 单句超限时才在句内硬切。
func splitTextForTTS(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range sentences {
		sr := []rune(sentence)
		if len(sr) > limit {
			// 单句超限，先排空缓冲再硬切
			flush()
			for start := 0; start < len(sr); start += limit {
				end := start + limit
				if end > len(sr) {
					end = len(sr)
				}
				chunks = append(chunks, strings.TrimSpace(string(sr[start:end])))
			}
			continue
		}
		if currentLen > 0 && currentLen+1+len(sr) > limit {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += len(sr)
	}
	flush()

	return chunks
}

// splitSentences 按句末标点切分，标点保留在句尾
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
