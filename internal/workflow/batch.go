package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"short-video-workflow/pkg/tools/file"
)

const (
	batchAttempts   = 2
	batchRetryDelay = 2 * time.Second
)

// BatchProgress 批量任务的进度快照
type BatchProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// GetProgress 返回当前批量任务的进度
func (p *Processor) GetProgress() BatchProgress {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	return p.progress
}

func (p *Processor) setProgress(fn func(*BatchProgress)) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	fn(&p.progress)
}

// BatchGenerate 从文案文件批量生成视频，每条文案一个视频。
// template提供除文案和输出名以外的公共参数。
// 单条失败重试一次后跳过，不中断整批。
func (p *Processor) BatchGenerate(ctx context.Context, textsPath string, template GenerateParams) ([]*GenerateResult, error) {
	texts, err := file.LoadTexts(textsPath)
	if err != nil {
		return nil, err
	}

	p.setProgress(func(bp *BatchProgress) {
		*bp = BatchProgress{Total: len(texts)}
	})

	p.logger.Info("开始批量生成", zap.Int("文案数", len(texts)))

	var results []*GenerateResult
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		params := template
		params.Text = text
		params.OutputName = ""

		var result *GenerateResult
		var genErr error
		for attempt := 1; attempt <= batchAttempts; attempt++ {
			result, genErr = p.GenerateVideo(ctx, params)
			if genErr == nil {
				break
			}
			p.logger.Warn("单条生成失败",
				zap.Int("序号", i+1),
				zap.Int("尝试", attempt),
				zap.Error(genErr),
			)
			if attempt < batchAttempts {
				time.Sleep(batchRetryDelay)
			}
		}

		if genErr != nil {
			p.setProgress(func(bp *BatchProgress) { bp.Failed++ })
			continue
		}
		p.setProgress(func(bp *BatchProgress) { bp.Completed++ })
		results = append(results, result)
	}

	p.logger.Info("批量生成结束",
		zap.Int("成功", len(results)),
		zap.Int("总数", len(texts)),
	)
	return results, nil
}
