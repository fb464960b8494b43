/*字幕时间轴分配*/
package captions

import (
	"math"
	"regexp"
	"strings"
)

// CaptionSpan 句级字幕条目
type CaptionSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// WordSpan 卡拉OK逐词条目
type WordSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Index int     `json:"index"`
}

// WordStamp 识别出的单词时间戳
type WordStamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// 每组5个词，末组最多吸收到7个词，避免结尾出现孤词组
const (
	groupSize      = 5
	maxTailGroup   = 7
	minSpanSeconds = 0.05
)

// AllocateCaptionSpans 把文本切分为定时字幕段，均匀铺满总时长。
// 按空白分词，每5个词一组；剩余不超过7个词时并入最后一组。
// 每个词的时长为 duration/词数，各组首尾相接，最后一组强制对齐到 duration。
func AllocateCaptionSpans(text string, duration float64) []CaptionSpan {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []CaptionSpan{{Start: 0, End: duration, Text: ""}}
	}

	var groups [][]string
	idx := 0
	for idx < len(words) {
		size := groupSize
		if remaining := len(words) - idx; remaining <= maxTailGroup {
			size = remaining
		}
		groups = append(groups, words[idx:idx+size])
		idx += size
	}

	perWord := duration / float64(len(words))
	spans := make([]CaptionSpan, 0, len(groups))
	t := 0.0
	for _, g := range groups {
		start := t
		end := math.Min(duration, start+perWord*float64(len(g)))
		spans = append(spans, CaptionSpan{Start: start, End: end, Text: strings.Join(g, " ")})
		t = end
	}

	// 吸收浮点漂移：末段必须精确落在总时长上
	spans[len(spans)-1].End = duration

	// 零长度段拉长到最小时长，不回填相邻段
	for i := range spans {
		if math.Abs(spans[i].End-spans[i].Start) <= 1e-3 {
			spans[i].End = spans[i].Start + minSpanSeconds
		}
	}

	return spans
}

// AllocateKaraokeWordSpans 按词的字符长度加权分配逐词时间轴。
// 不做强制对齐，长词获得略多的时间，作为无ASR时的近似方案。
func AllocateKaraokeWordSpans(text string, duration float64) []WordSpan {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return []WordSpan{{Start: 0, End: duration, Text: "", Index: 0}}
	}

	weights := make([]int, len(tokens))
	totalWeight := 0
	for i, tok := range tokens {
		w := len([]rune(tok))
		if w < 1 {
			w = 1
		}
		weights[i] = w
		totalWeight += w
	}

	spans := make([]WordSpan, 0, len(tokens))
	t := 0.0
	for i, tok := range tokens {
		dur := duration * float64(weights[i]) / float64(totalWeight)
		start := t
		end := math.Min(duration, start+dur)
		spans = append(spans, WordSpan{Start: start, End: end, Text: tok, Index: i})
		t = end
	}
	spans[len(spans)-1].End = duration
	return spans
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// AlignWordsToOriginal 把识别结果的时间戳对回原文的词序列。
// 词数相差不超过2时认为近似一一对应：原文第i个词取识别第i个词的时间；
// 超出识别数量的原文词从最后已知时间起依次补0.5秒。
// 相差超过2时认为对齐不可靠，原样返回识别结果。
func AlignWordsToOriginal(words []WordStamp, originalText string) []WordStamp {
	originalTokens := wordPattern.FindAllString(strings.ToLower(originalText), -1)
	if len(originalTokens) == 0 || len(words) == 0 {
		return words
	}

	diff := len(originalTokens) - len(words)
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		return words
	}

	aligned := make([]WordStamp, 0, len(originalTokens))
	for i, tok := range originalTokens {
		if i < len(words) {
			aligned = append(aligned, WordStamp{Start: words[i].Start, End: words[i].End, Word: tok})
			continue
		}
		// 识别结果不够用，顺延补足
		lastEnd := 0.0
		if len(aligned) > 0 {
			lastEnd = aligned[len(aligned)-1].End
		}
		aligned = append(aligned, WordStamp{Start: lastEnd, End: lastEnd + 0.5, Word: tok})
	}
	return aligned
}

// WordsToKaraokeSpans 把单词时间戳转换为逐词字幕条目
func WordsToKaraokeSpans(words []WordStamp) []WordSpan {
	spans := make([]WordSpan, 0, len(words))
	for i, w := range words {
		spans = append(spans, WordSpan{
			Start: w.Start,
			End:   w.End,
			Text:  strings.TrimSpace(w.Word),
			Index: i,
		})
	}
	return spans
}
