package tools

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSplitTextForTTSShortText(t *testing.T) {
	text := "This is a short sentence."
	chunks := splitTextForTTS(text, 200)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("短文本应原样返回，得到 %v", chunks)
	}
}

func TestSplitTextForTTSSentenceBoundaries(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("This sentence has exactly some words in it. ")
	}
	text := strings.TrimSpace(sb.String())

	chunks := splitTextForTTS(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("长文本应切为多块，得到 %d 块", len(chunks))
	}
	for i, chunk := range chunks {
		if len([]rune(chunk)) > 200 {
			t.Errorf("块 %d 超过200字符: %d", i, len([]rune(chunk)))
		}
		if !strings.HasSuffix(chunk, ".") {
			t.Errorf("块 %d 未在句子边界结束: %q", i, chunk)
		}
	}
	// 拼回后单词序列不变
	joined := strings.Join(chunks, " ")
	if strings.Join(strings.Fields(joined), " ") != strings.Join(strings.Fields(text), " ") {
		t.Error("切块后单词序列发生变化")
	}
}

func TestSplitTextForTTSOversizeSentence(t *testing.T) {
	text := strings.Repeat("word ", 100) + "end."
	chunks := splitTextForTTS(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("超长单句应被硬切，得到 %d 块", len(chunks))
	}
	for i, chunk := range chunks {
		if len([]rune(chunk)) > 200 {
			t.Errorf("块 %d 超过200字符: %d", i, len([]rune(chunk)))
		}
	}
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second one! Third one? Tail without punctuation")
	if len(sentences) != 4 {
		t.Fatalf("期望4个句子，得到 %d: %v", len(sentences), sentences)
	}
	if sentences[0] != "First one." || sentences[3] != "Tail without punctuation" {
		t.Errorf("句子切分结果不正确: %v", sentences)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	tp := NewTTSProcessor(zap.NewNop(), nil)
	_, err := tp.Synthesize("   ", "", t.TempDir())
	var invalidErr *InvalidInputError
	if !errors.As(err, &invalidErr) {
		t.Errorf("期望InvalidInputError，得到 %v", err)
	}
}

func TestSynthesizeEndpointFailover(t *testing.T) {
	// 伪造一段足够大的"音频"
	audio := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 600)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ttsResponse{
			Success: true,
			Data:    base64.StdEncoding.EncodeToString(audio),
		})
	}))
	defer working.Close()

	tp := NewTTSProcessor(zap.NewNop(), []string{broken.URL, working.URL})
	outDir := t.TempDir()

	path, err := tp.Synthesize("Hello world.", "en_us_002", outDir)
	if err != nil {
		t.Fatalf("首个端点失败时应降级到下一个: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取输出文件失败: %v", err)
	}
	if !bytes.Equal(data, audio) {
		t.Error("输出音频与端点返回不一致")
	}
}

func TestSynthesizeAllEndpointsFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer broken.Close()

	tp := NewTTSProcessor(zap.NewNop(), []string{broken.URL, broken.URL})
	_, err := tp.Synthesize("Hello world.", "en_us_002", t.TempDir())

	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("期望SynthesisError，得到 %v", err)
	}
	if len(synthErr.Attempts) != 2 {
		t.Errorf("应记录每个端点的失败原因，得到 %d 条", len(synthErr.Attempts))
	}
}

func TestSynthesizeRejectsTinyOutput(t *testing.T) {
	tiny := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ttsResponse{
			Success: true,
			Data:    base64.StdEncoding.EncodeToString([]byte("not audio")),
		})
	}))
	defer tiny.Close()

	tp := NewTTSProcessor(zap.NewNop(), []string{tiny.URL})
	outDir := t.TempDir()
	_, err := tp.Synthesize("Hello world.", "en_us_002", outDir)

	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("过小的输出应判定为合成失败，得到 %v", err)
	}
	entries, _ := os.ReadDir(outDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tts_") && strings.HasSuffix(e.Name(), ".mp3") {
			t.Errorf("失败时不应残留输出文件: %s", e.Name())
		}
	}
}
