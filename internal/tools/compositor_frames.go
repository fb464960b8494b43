/*视频合成 - 逐帧合成后端*/
package tools

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"short-video-workflow/pkg/tools/media"
)

// FrameCompositor 逐帧合成后端：把背景视频解码为RGBA帧序列，
// 在每一帧上叠加当前时刻激活的文字图层，再送回编码器。
// 作为滤镜图后端失败时的替代路径，产出等价的成品。
type FrameCompositor struct {
	logger  *zap.Logger
	overlay *OverlayRenderer
}

// NewFrameCompositor 创建逐帧合成器
func NewFrameCompositor(logger *zap.Logger) *FrameCompositor {
	return &FrameCompositor{
		logger:  logger,
		overlay: NewOverlayRenderer(logger),
	}
}

// Compose 执行合成，返回输出文件路径
func (fc *FrameCompositor) Compose(req *CompositionRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	audioDur, err := media.ProbeDuration(req.AudioPath)
	if err != nil {
		return "", err
	}
	// 时长向下对齐到整帧，避免末尾出现没有画面的音频尾巴
	duration := snapDurationToFrames(audioDur+req.TailPadding, req.FPS)

	var layers []OverlayLayer
	if len(req.WordSpans) > 0 {
		layers = fc.overlay.RenderKaraokeLayers(req.WordSpans, req.Width, req.Height)
	} else {
		layers = fc.overlay.RenderCaptionLayers(req.CaptionSpans, req.Width, req.Height)
	}

	musicPath := pickBackgroundMusic(req)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	fc.logger.Info("开始逐帧合成",
		zap.Float64("时长", duration),
		zap.Int("图层数", len(layers)),
		zap.Bool("分屏", req.SplitScreen),
	)

	var decoders []*frameDecoder
	defer func() {
		for _, d := range decoders {
			d.Close()
		}
	}()

	if req.SplitScreen {
		top, err := fc.startBandDecoder(req.VideoPath, req.StartOffset, duration, req.Width, req.Height/2, req.FPS)
		if err != nil {
			return "", err
		}
		decoders = append(decoders, top)
		bottom, err := fc.startBandDecoder(req.SecondVideo, nil, duration, req.Width, req.Height/2, req.FPS)
		if err != nil {
			return "", err
		}
		decoders = append(decoders, bottom)
	} else {
		dec, err := fc.startBaseDecoder(req.VideoPath, req.StartOffset, duration, req.Width, req.Height, req.FPS)
		if err != nil {
			return "", err
		}
		decoders = append(decoders, dec)
	}

	encErr := fc.encodeFrames(req, decoders, layers, duration, musicPath)
	if encErr != nil {
		// 合成库在收尾阶段可能抛出无害异常，产物完整时视为成功
		if info, err := os.Stat(req.OutputPath); err == nil && info.Size() > 0 {
			fc.logger.Warn("编码器报错但产物完整，按成功处理", zap.Error(encErr))
		} else {
			os.Remove(req.OutputPath)
			return "", encErr
		}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return "", &RenderError{Stage: "frame-compositing", Output: "输出文件缺失或为空"}
	}

	fc.logger.Info("逐帧合成完成",
		zap.String("输出文件", req.OutputPath),
		zap.Int64("大小", info.Size()),
	)
	return req.OutputPath, nil
}

// frameDecoder 一路解码流，按帧吐出固定尺寸的RGBA数据
type frameDecoder struct {
	reader    *io.PipeReader
	frameSize int
	buf       []byte
	last      []byte
	done      chan error
}

// ReadFrame 读取下一帧。解码流提前结束时重复最后一帧补齐。
func (d *frameDecoder) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(d.reader, d.buf); err != nil {
		if d.last != nil {
			return d.last, nil
		}
		return nil, fmt.Errorf("解码流提前结束: %w", err)
	}
	if d.last == nil {
		d.last = make([]byte, d.frameSize)
	}
	copy(d.last, d.buf)
	return d.buf, nil
}

func (d *frameDecoder) Close() {
	d.reader.Close()
	<-d.done
}

// startBaseDecoder 解码整幅背景：9:16居中裁剪后缩放到目标尺寸
func (fc *FrameCompositor) startBaseDecoder(path string, offset *float64, duration float64, outW, outH, fps int) (*frameDecoder, error) {
	info, err := media.ProbeVideo(path)
	if err != nil {
		return nil, err
	}
	crop := cropWindow(info.Width, info.Height)
	start, loop := subclipStart(info.Duration, duration, offset)

	stream := fc.inputStream(path, start, loop).
		Filter("crop", ffmpeg.Args{
			fmt.Sprint(crop.Dx()), fmt.Sprint(crop.Dy()),
			fmt.Sprint(crop.Min.X), fmt.Sprint(crop.Min.Y),
		}).
		Filter("scale", ffmpeg.Args{fmt.Sprint(outW), fmt.Sprint(outH)}).
		Filter("fps", ffmpeg.Args{fmt.Sprint(fps)})

	return fc.runDecoder(stream, duration, outW, outH)
}

// startBandDecoder 解码分屏的一半：9:16裁剪后取下方3/4画面带，缩放到半高
func (fc *FrameCompositor) startBandDecoder(path string, offset *float64, duration float64, outW, outH, fps int) (*frameDecoder, error) {
	info, err := media.ProbeVideo(path)
	if err != nil {
		return nil, err
	}
	crop := cropWindow(info.Width, info.Height)
	start, loop := subclipStart(info.Duration, duration, offset)

	stream := fc.inputStream(path, start, loop).
		Filter("crop", ffmpeg.Args{
			fmt.Sprint(crop.Dx()), fmt.Sprint(crop.Dy()),
			fmt.Sprint(crop.Min.X), fmt.Sprint(crop.Min.Y),
		}).
		Filter("crop", ffmpeg.Args{"iw", "ih*3/4", "0", "ih*1/4"}).
		Filter("scale", ffmpeg.Args{fmt.Sprint(outW), fmt.Sprint(outH)}).
		Filter("fps", ffmpeg.Args{fmt.Sprint(fps)})

	return fc.runDecoder(stream, duration, outW, outH)
}

func (fc *FrameCompositor) inputStream(path string, start float64, loop bool) *ffmpeg.Stream {
	kwargs := ffmpeg.KwArgs{"ss": start}
	if loop {
		kwargs["stream_loop"] = -1
	}
	return ffmpeg.Input(path, kwargs)
}

func (fc *FrameCompositor) runDecoder(stream *ffmpeg.Stream, duration float64, w, h int) (*frameDecoder, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := stream.
			Output("pipe:", ffmpeg.KwArgs{
				"format":  "rawvideo",
				"pix_fmt": "rgba",
				"t":       duration,
			}).
			WithOutput(pw).Silent(true).Run()
		pw.CloseWithError(err)
		done <- err
	}()

	frameSize := w * h * 4
	return &frameDecoder{
		reader:    pr,
		frameSize: frameSize,
		buf:       make([]byte, frameSize),
		done:      done,
	}, nil
}

// encodeFrames 逐帧叠加图层并送入编码器，同时混入旁白、静音底轨和可选配乐
func (fc *FrameCompositor) encodeFrames(req *CompositionRequest, decoders []*frameDecoder, layers []OverlayLayer, duration float64, musicPath string) error {
	var musicKwargs ffmpeg.KwArgs
	if musicPath != "" {
		// 配乐比成品长时随机截取一段，不够长时才循环补足
		musicKwargs = ffmpeg.KwArgs{"stream_loop": -1}
		if musicDur, err := media.ProbeDuration(musicPath); err == nil {
			musicKwargs = musicInputKwargs(musicDur, duration)
		} else {
			fc.logger.Warn("探测配乐时长失败，从头循环播放", zap.Error(err))
		}
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		videoIn := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
			"format":    "rawvideo",
			"pix_fmt":   "rgba",
			"s":         fmt.Sprintf("%dx%d", req.Width, req.Height),
			"framerate": req.FPS,
		})

		// 显式静音底轨撑满全长，防止编码时音频尾部被截断
		silence := ffmpeg.Input(fmt.Sprintf("anullsrc=r=44100:cl=stereo:d=%g", duration), ffmpeg.KwArgs{"f": "lavfi"})
		narration := ffmpeg.Input(req.AudioPath)

		audioStreams := []*ffmpeg.Stream{silence.Audio(), narration.Audio()}
		if musicPath != "" {
			music := ffmpeg.Input(musicPath, musicKwargs).
				Audio().
				Filter("atrim", ffmpeg.Args{fmt.Sprintf("0:%g", duration)}).
				Filter("volume", ffmpeg.Args{fmt.Sprintf("%g", req.MusicVolume)})
			audioStreams = append(audioStreams, music)
		}
		audioOut := ffmpeg.Filter(audioStreams, "amix", nil, ffmpeg.KwArgs{
			"inputs":             len(audioStreams),
			"duration":           "longest",
			"dropout_transition": 0,
		}).Filter("atrim", ffmpeg.Args{fmt.Sprintf("0:%g", duration)})

		outKwargs := ffmpeg.KwArgs{
			"c:v":       "libx264",
			"preset":    req.Preset,
			"crf":       req.CRF,
			"pix_fmt":   "yuv420p",
			"profile:v": "high",
			"movflags":  "+faststart",
			"c:a":       "aac",
			"b:a":       "192k",
			"r":         req.FPS,
			"t":         duration,
		}
		if req.Bitrate != "" {
			outKwargs["b:v"] = req.Bitrate
		}

		err := ffmpeg.Output([]*ffmpeg.Stream{videoIn, audioOut}, req.OutputPath, outKwargs).
			OverWriteOutput().WithInput(pr).Silent(true).Run()
		pr.CloseWithError(err)
		done <- err
	}()

	totalFrames := int(math.Round(duration * float64(req.FPS)))
	frame := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	halfRows := req.Height / 2 * req.Width * 4

	writeErr := func() error {
		defer pw.Close()
		for i := 0; i < totalFrames; i++ {
			if len(decoders) == 2 {
				top, err := decoders[0].ReadFrame()
				if err != nil {
					return err
				}
				bottom, err := decoders[1].ReadFrame()
				if err != nil {
					return err
				}
				copy(frame.Pix[:halfRows], top)
				copy(frame.Pix[halfRows:], bottom)
			} else {
				raw, err := decoders[0].ReadFrame()
				if err != nil {
					return err
				}
				copy(frame.Pix, raw)
			}

			t := float64(i) / float64(req.FPS)
			for _, layer := range layers {
				if t >= layer.Start && t < layer.Start+layer.Duration() {
					b := layer.Image.Bounds()
					dst := image.Rect(layer.X, layer.Y, layer.X+b.Dx(), layer.Y+b.Dy())
					draw.Draw(frame, dst, layer.Image, b.Min, draw.Over)
				}
			}

			if _, err := pw.Write(frame.Pix); err != nil {
				return err
			}
		}
		return nil
	}()

	encErr := <-done
	if encErr != nil {
		return &RenderError{Stage: "frame-compositing", Output: "编码器退出异常", Err: encErr}
	}
	if writeErr != nil {
		return &RenderError{Stage: "frame-compositing", Output: "帧流写入失败", Err: writeErr}
	}
	return nil
}

// musicInputKwargs 确定配乐输入参数：时长富余时在有效范围内随机选起点，
// 不够长时从头循环播放补足
func musicInputKwargs(musicDur, required float64) ffmpeg.KwArgs {
	start, loop := subclipStart(musicDur, required, nil)
	kwargs := ffmpeg.KwArgs{"ss": start}
	if loop {
		kwargs["stream_loop"] = -1
	}
	return kwargs
}

// snapDurationToFrames 把时长向下对齐到整帧数，下限0.01秒
func snapDurationToFrames(d float64, fps int) float64 {
	if fps <= 0 {
		fps = DefaultFPS
	}
	snapped := math.Floor(d*float64(fps)) / float64(fps)
	if snapped < 0.01 {
		return 0.01
	}
	return snapped
}

// cropWindow 计算9:16居中裁剪窗口：横向过宽裁两侧，纵向过高裁上下，
// 结果尺寸保证为偶数，从不放大原画面
func cropWindow(srcW, srcH int) image.Rectangle {
	toEven := func(x int) int {
		if x%2 != 0 {
			return x - 1
		}
		return x
	}

	const targetRatio = 9.0 / 16.0
	ratio := float64(srcW) / float64(srcH)

	if ratio > targetRatio {
		newW := toEven(int(float64(srcH) * targetRatio))
		x1 := (srcW - newW) / 2
		return image.Rect(x1, 0, x1+newW, toEven(srcH))
	}
	newH := toEven(int(float64(srcW) / targetRatio))
	y1 := (srcH - newH) / 2
	return image.Rect(0, y1, toEven(srcW), y1+newH)
}

// subclipStart 确定背景视频的取片窗口。
// 视频足够长时在有效范围内选起点；不够长时从起点循环播放补足。
func subclipStart(videoDur, required float64, offset *float64) (start float64, loop bool) {
	if videoDur >= required {
		maxStart := videoDur - required
		if offset == nil {
			return rand.Float64() * maxStart, false
		}
		start = *offset
		if start < 0 {
			start = 0
		}
		if start > maxStart {
			start = maxStart
		}
		return start, false
	}
	if offset != nil {
		start = *offset
		if start < 0 {
			start = 0
		}
		if limit := videoDur - 0.01; start > limit {
			start = limit
		}
	}
	return start, true
}
