package file

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	return path
}

func TestLoadTextsCSVWithHeader(t *testing.T) {
	path := writeTemp(t, "texts.csv", "text,voice\n第一条文案,en_us_002\n第二条文案,en_us_006\n")

	texts, err := LoadTexts(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("期望2条文案，得到 %d", len(texts))
	}
	if texts[0] != "第一条文案" || texts[1] != "第二条文案" {
		t.Errorf("文案内容不正确: %v", texts)
	}
}

func TestLoadTextsCSVWithoutHeader(t *testing.T) {
	path := writeTemp(t, "texts.csv", "Story one here\nStory two here\n")

	texts, err := LoadTexts(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("无表头时首行也是文案，得到 %v", texts)
	}
}

func TestLoadTextsPlainLines(t *testing.T) {
	path := writeTemp(t, "texts.txt", "第一条\n\n  第二条  \r\n第三条\n\n")

	texts, err := LoadTexts(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("期望3条文案，得到 %d: %v", len(texts), texts)
	}
	if texts[1] != "第二条" {
		t.Errorf("应去除首尾空白，得到 %q", texts[1])
	}
}

func TestLoadTextsEmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.txt", "\n\n  \n")
	if _, err := LoadTexts(path); err == nil {
		t.Error("空文件应返回错误")
	}
}

func TestLoadTextsMissingFile(t *testing.T) {
	if _, err := LoadTexts(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("缺失的文件应返回错误")
	}
}

func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := SaveJSON(path, map[string]int{"total": 3}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if string(data) != "{\n  \"total\": 3\n}" {
		t.Errorf("JSON内容不正确: %s", data)
	}
}
