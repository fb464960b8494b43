package media

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestProbeDurationMissingFile(t *testing.T) {
	_, err := ProbeDuration(filepath.Join(t.TempDir(), "no_such_file.wav"))
	if err == nil {
		t.Fatal("文件不存在时应返回错误")
	}
	var mediaErr *MediaError
	if !errors.As(err, &mediaErr) {
		t.Errorf("错误类型应为 MediaError，实际 %T", err)
	}
}

func TestProbeDurationUnreadableFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("跳过测试：未安装ffprobe")
	}

	// 写入一个并非媒体文件的文件
	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(bogus, []byte("not really audio"), 0644); err != nil {
		t.Fatalf("创建测试文件失败: %v", err)
	}

	_, err := ProbeDuration(bogus)
	if err == nil {
		t.Fatal("非媒体文件应返回错误")
	}
	var mediaErr *MediaError
	if !errors.As(err, &mediaErr) {
		t.Errorf("错误类型应为 MediaError，实际 %T", err)
	}
}
