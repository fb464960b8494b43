/*字幕图层渲染*/
package tools

import (
	"image"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"short-video-workflow/pkg/captions"
)

// OverlayLayer 一张定时的透明字幕图层
type OverlayLayer struct {
	Image image.Image
	Start float64
	End   float64
	X     int
	Y     int
}

// Duration 图层显示时长，下限0.01秒
func (l OverlayLayer) Duration() float64 {
	d := l.End - l.Start
	if d < 0.01 {
		d = 0.01
	}
	return d
}

// OverlayRenderer 把字幕段渲染为帧合成后端使用的透明图层
type OverlayRenderer struct {
	logger    *zap.Logger
	fontPaths []string
}

// NewOverlayRenderer 创建图层渲染器
func NewOverlayRenderer(logger *zap.Logger) *OverlayRenderer {
	return &OverlayRenderer{
		logger: logger,
		fontPaths: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"/System/Library/Fonts/Supplemental/Arial Bold.ttf",
			"/System/Library/Fonts/Supplemental/Arial.ttf",
		},
	}
}

// WithFontPaths 覆盖字体查找路径
func (or *OverlayRenderer) WithFontPaths(paths []string) *OverlayRenderer {
	or.fontPaths = paths
	return or
}

// loadFace 依次尝试候选字体文件，全部失败时退回内置点阵字体
func (or *OverlayRenderer) loadFace(size float64) font.Face {
	for _, p := range or.fontPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		parsed, err := truetype.Parse(data)
		if err != nil {
			continue
		}
		return truetype.NewFace(parsed, &truetype.Options{Size: size})
	}
	return basicfont.Face7x13
}

// RenderCaptionLayers 渲染句级字幕图层：自动换行到帧宽的90%，定位于下三分之一处
func (or *OverlayRenderer) RenderCaptionLayers(spans []captions.CaptionSpan, width, height int) []OverlayLayer {
	maxTextWidth := int(float64(width) * 0.9)
	yPos := int(float64(height) * 0.78)

	layers := make([]OverlayLayer, 0, len(spans))
	for _, span := range spans {
		img := or.renderWrappedText(span.Text, maxTextWidth)
		layers = append(layers, OverlayLayer{
			Image: img,
			Start: span.Start,
			End:   span.End,
			X:     (width - maxTextWidth) / 2,
			Y:     yPos,
		})
	}
	return layers
}

// RenderKaraokeLayers 渲染逐词图层：单词居中放大，带描边，超宽时逐级缩小字号
func (or *OverlayRenderer) RenderKaraokeLayers(spans []captions.WordSpan, width, height int) []OverlayLayer {
	maxWordWidth := int(float64(width) * 0.85)
	centerY := height / 2

	layers := make([]OverlayLayer, 0, len(spans))
	for _, span := range spans {
		word := strings.TrimSpace(span.Text)
		img := or.renderSingleWord(word, maxWordWidth)
		layers = append(layers, OverlayLayer{
			Image: img,
			Start: span.Start,
			End:   span.End,
			X:     (width - maxWordWidth) / 2,
			Y:     centerY - img.Bounds().Dy()/2,
		})
	}
	return layers
}

const (
	captionFontPx    = 64.0
	karaokeStartPx   = 40.0
	karaokeMinPx     = 24.0
	karaokeStepPx    = 3.0
	captionStrokePx  = 4
	karaokeStrokePx  = 3
	captionLineGapPx = 8
)

// renderWrappedText 按最大宽度换行并绘制多行文本，白字黑描边
func (or *OverlayRenderer) renderWrappedText(text string, maxW int) image.Image {
	face := or.loadFace(captionFontPx)
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)

	var lines []string
	line := ""
	for _, w := range strings.Fields(text) {
		test := strings.TrimSpace(line + " " + w)
		lw, _ := measure.MeasureString(test)
		if int(lw)+2*captionStrokePx > maxW && line != "" {
			lines = append(lines, line)
			line = w
		} else {
			line = test
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}

	_, lineH := measure.MeasureString("Ag")
	rowH := int(lineH) + 2*captionStrokePx
	totalH := len(lines)*rowH + (len(lines)-1)*captionLineGapPx

	dc := gg.NewContext(maxW, totalH)
	dc.SetFontFace(face)
	for i, ln := range lines {
		cy := float64(i*(rowH+captionLineGapPx) + rowH/2)
		or.drawOutlinedString(dc, ln, float64(maxW)/2, cy, captionStrokePx)
	}
	return dc.Image()
}

// renderSingleWord 绘制单个居中词，字号从大到小搜索直至适配最大宽度
func (or *OverlayRenderer) renderSingleWord(word string, maxW int) image.Image {
	for size := karaokeStartPx; size >= karaokeMinPx; size -= karaokeStepPx {
		face := or.loadFace(size)
		measure := gg.NewContext(1, 1)
		measure.SetFontFace(face)
		lw, lh := measure.MeasureString(word)
		if int(lw)+2*karaokeStrokePx > maxW {
			continue
		}
		h := int(lh) + 2*karaokeStrokePx + 6
		dc := gg.NewContext(maxW, h)
		dc.SetFontFace(face)
		or.drawOutlinedString(dc, word, float64(maxW)/2, float64(h)/2, karaokeStrokePx)
		return dc.Image()
	}

	// 最小字号仍放不下时按最小字号硬画
	face := or.loadFace(karaokeMinPx)
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)
	_, lh := measure.MeasureString(word)
	h := int(lh) + 2*karaokeStrokePx + 6
	dc := gg.NewContext(maxW, h)
	dc.SetFontFace(face)
	or.drawOutlinedString(dc, word, float64(maxW)/2, float64(h)/2, karaokeStrokePx)
	return dc.Image()
}

// drawOutlinedString 以偏移重绘实现描边，保证任意背景上的可读性
func (or *OverlayRenderer) drawOutlinedString(dc *gg.Context, s string, cx, cy float64, stroke int) {
	r := float64(stroke)
	dc.SetRGB(0, 0, 0)
	for _, off := range [][2]float64{
		{-r, 0}, {r, 0}, {0, -r}, {0, r},
		{-r, -r}, {r, -r}, {-r, r}, {r, r},
	} {
		dc.DrawStringAnchored(s, cx+off[0], cy+off[1], 0.5, 0.5)
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(s, cx, cy, 0.5, 0.5)
}
