package workflow

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"short-video-workflow/internal/tools"
)

type fakeCompositor struct {
	out   string
	err   error
	calls int
}

func (f *fakeCompositor) Compose(req *tools.CompositionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(zap.NewNop(), Options{})
	if err != nil {
		t.Fatalf("创建处理器失败: %v", err)
	}
	return p
}

func TestGenerateVideoMissingText(t *testing.T) {
	p := testProcessor(t)
	_, err := p.GenerateVideo(context.Background(), GenerateParams{
		BackgroundVideo: "bg.mp4",
	})
	var invalidErr *tools.InvalidInputError
	if !errors.As(err, &invalidErr) {
		t.Errorf("期望InvalidInputError，得到 %v", err)
	}
}

func TestGenerateVideoMissingBackgroundVideo(t *testing.T) {
	p := testProcessor(t)
	_, err := p.GenerateVideo(context.Background(), GenerateParams{
		Text: "一段文案",
	})
	var invalidErr *tools.InvalidInputError
	if !errors.As(err, &invalidErr) {
		t.Errorf("期望InvalidInputError，得到 %v", err)
	}
}

func TestComposeFallsBackToFrames(t *testing.T) {
	p := testProcessor(t)
	ffmpegFake := &fakeCompositor{err: &tools.RenderError{Stage: "ffmpeg", Output: "boom"}}
	frameFake := &fakeCompositor{out: "out.mp4"}
	p.ffmpegComp = ffmpegFake
	p.frameComp = frameFake

	out, renderer, err := p.compose(&tools.CompositionRequest{}, "")
	if err != nil {
		t.Fatalf("降级后应成功: %v", err)
	}
	if out != "out.mp4" || renderer != "frames" {
		t.Errorf("降级结果不正确: out=%s renderer=%s", out, renderer)
	}
	if ffmpegFake.calls != 1 || frameFake.calls != 1 {
		t.Errorf("两个后端应各调用一次: ffmpeg=%d frames=%d", ffmpegFake.calls, frameFake.calls)
	}
}

func TestComposeExplicitBackendNoFallback(t *testing.T) {
	p := testProcessor(t)
	ffmpegFake := &fakeCompositor{err: &tools.RenderError{Stage: "ffmpeg", Output: "boom"}}
	frameFake := &fakeCompositor{out: "out.mp4"}
	p.ffmpegComp = ffmpegFake
	p.frameComp = frameFake

	_, renderer, err := p.compose(&tools.CompositionRequest{}, "ffmpeg")
	if err == nil {
		t.Error("显式指定ffmpeg后端失败时不应降级")
	}
	if renderer != "ffmpeg" {
		t.Errorf("渲染器标识不正确: %s", renderer)
	}
	if frameFake.calls != 0 {
		t.Error("逐帧后端不应被调用")
	}

	out, renderer, err := p.compose(&tools.CompositionRequest{}, "frames")
	if err != nil || out != "out.mp4" || renderer != "frames" {
		t.Errorf("指定逐帧后端结果不正确: out=%s renderer=%s err=%v", out, renderer, err)
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("短文案", 120); got != "短文案" {
		t.Errorf("短文案应原样返回，得到 %q", got)
	}
	long := make([]rune, 200)
	for i := range long {
		long[i] = '字'
	}
	got := excerpt(string(long), 120)
	if len([]rune(got)) != 123 {
		t.Errorf("摘要长度不正确: %d", len([]rune(got)))
	}
}
