package tools

import (
	"testing"

	"go.uber.org/zap"

	"short-video-workflow/pkg/captions"
)

// 测试中不依赖系统字体，强制使用内置点阵字体
func testRenderer() *OverlayRenderer {
	return NewOverlayRenderer(zap.NewNop()).WithFontPaths(nil)
}

func TestRenderCaptionLayers(t *testing.T) {
	or := testRenderer()
	spans := []captions.CaptionSpan{
		{Start: 0, End: 2, Text: "hello world"},
		{Start: 2, End: 4, Text: "second caption line"},
	}
	layers := or.RenderCaptionLayers(spans, 1080, 1920)

	if len(layers) != 2 {
		t.Fatalf("期望2个图层，实际 %d 个", len(layers))
	}
	for i, l := range layers {
		if l.Image == nil {
			t.Fatalf("第%d个图层没有图像", i)
		}
		if l.Image.Bounds().Dx() != 972 {
			t.Errorf("字幕图层宽度应为帧宽的90%% (972)，实际 %d", l.Image.Bounds().Dx())
		}
		if l.Y != 1497 {
			t.Errorf("字幕图层应位于帧高78%%处 (1497)，实际 %d", l.Y)
		}
		if l.Start != spans[i].Start || l.End != spans[i].End {
			t.Errorf("第%d个图层时间窗不正确", i)
		}
	}
}

func TestRenderKaraokeLayersCentered(t *testing.T) {
	or := testRenderer()
	spans := []captions.WordSpan{
		{Start: 0, End: 0.5, Text: "one", Index: 0},
		{Start: 0.5, End: 1.2, Text: " padded ", Index: 1},
	}
	layers := or.RenderKaraokeLayers(spans, 1080, 1920)

	if len(layers) != 2 {
		t.Fatalf("期望2个图层，实际 %d 个", len(layers))
	}
	for i, l := range layers {
		if l.Image.Bounds().Dx() != 918 {
			t.Errorf("逐词图层宽度应为帧宽的85%% (918)，实际 %d", l.Image.Bounds().Dx())
		}
		wantY := 1920/2 - l.Image.Bounds().Dy()/2
		if l.Y != wantY {
			t.Errorf("第%d个图层应垂直居中于帧，期望Y=%d 实际 %d", i, wantY, l.Y)
		}
	}
}

func TestOverlayLayerDurationFloor(t *testing.T) {
	l := OverlayLayer{Start: 1.0, End: 1.0}
	if got := l.Duration(); got != 0.01 {
		t.Errorf("零长度图层时长应floor到0.01，实际 %f", got)
	}
	l = OverlayLayer{Start: 0, End: 2.5}
	if got := l.Duration(); got != 2.5 {
		t.Errorf("正常图层时长不正确: %f", got)
	}
}

func TestRenderCaptionLayersLongTextWraps(t *testing.T) {
	or := testRenderer()
	long := "this is a rather long caption that should certainly wrap onto more than a single rendered line of text"
	short := "hi"

	longLayer := or.RenderCaptionLayers([]captions.CaptionSpan{{Start: 0, End: 1, Text: long}}, 320, 640)[0]
	shortLayer := or.RenderCaptionLayers([]captions.CaptionSpan{{Start: 0, End: 1, Text: short}}, 320, 640)[0]

	if longLayer.Image.Bounds().Dy() <= shortLayer.Image.Bounds().Dy() {
		t.Error("长文本应换行为更高的图层")
	}
}

func TestRenderSingleWordNonEmpty(t *testing.T) {
	or := testRenderer()
	layers := or.RenderKaraokeLayers([]captions.WordSpan{
		{Start: 0, End: 1, Text: "supercalifragilisticexpialidocious", Index: 0},
	}, 200, 400)
	if len(layers) != 1 {
		t.Fatalf("期望1个图层，实际 %d 个", len(layers))
	}
	// 超长词在最小字号下仍要产出图像
	if layers[0].Image.Bounds().Dy() == 0 {
		t.Error("超长词图层高度不应为0")
	}
}
