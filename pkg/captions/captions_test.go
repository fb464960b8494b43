package captions

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestAllocateCaptionSpansTenWords(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	spans := AllocateCaptionSpans(text, 10.0)

	if len(spans) != 2 {
		t.Fatalf("期望2个字幕段，实际得到 %d 个", len(spans))
	}
	if spans[0].Text != "one two three four five" {
		t.Errorf("第一段文本不正确: %q", spans[0].Text)
	}
	if spans[1].Text != "six seven eight nine ten" {
		t.Errorf("第二段文本不正确: %q", spans[1].Text)
	}
	if math.Abs(spans[0].End-spans[0].Start-5.0) > 1e-9 {
		t.Errorf("第一段时长应为5.0秒，实际 %f", spans[0].End-spans[0].Start)
	}
	if spans[1].End != 10.0 {
		t.Errorf("末段结束时间应精确等于10.0，实际 %f", spans[1].End)
	}
}

func TestAllocateCaptionSpansCoverage(t *testing.T) {
	texts := []string{
		"hello world",
		"a b c d e f g h",
		"the quick brown fox jumps over the lazy dog again and again until dawn",
	}
	for _, text := range texts {
		for _, duration := range []float64{1.0, 7.3, 61.5} {
			spans := AllocateCaptionSpans(text, duration)
			if len(spans) == 0 {
				t.Fatalf("文本 %q 未生成字幕段", text)
			}
			if spans[0].Start != 0 {
				t.Errorf("首段应从0开始，实际 %f", spans[0].Start)
			}
			if spans[len(spans)-1].End != duration {
				t.Errorf("末段应结束于 %f，实际 %f", duration, spans[len(spans)-1].End)
			}
			for i, s := range spans {
				if s.End <= s.Start {
					t.Errorf("第%d段 end<=start: %+v", i, s)
				}
				if i > 0 && spans[i-1].End != s.Start {
					t.Errorf("第%d段与前段之间存在间隙或重叠", i)
				}
			}
		}
	}
}

func TestAllocateCaptionSpansTailGroup(t *testing.T) {
	// 12个词：剩余7个时并入同一组，不产生两个不均匀的小组
	text := strings.Repeat("word ", 12)
	spans := AllocateCaptionSpans(text, 12.0)
	if len(spans) != 2 {
		t.Fatalf("12个词应分为 [5,7] 两组，实际 %d 组", len(spans))
	}
	if got := len(strings.Fields(spans[1].Text)); got != 7 {
		t.Errorf("末组应包含7个词，实际 %d 个", got)
	}
}

func TestAllocateCaptionSpansEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		spans := AllocateCaptionSpans(text, 4.2)
		if len(spans) != 1 {
			t.Fatalf("空文本应返回单个字幕段，实际 %d 个", len(spans))
		}
		if spans[0].Start != 0 || spans[0].End != 4.2 || spans[0].Text != "" {
			t.Errorf("空文本字幕段不正确: %+v", spans[0])
		}
	}
}

func TestAllocateCaptionSpansIdempotent(t *testing.T) {
	text := "deterministic output please no hidden randomness here at all"
	a := AllocateCaptionSpans(text, 9.7)
	b := AllocateCaptionSpans(text, 9.7)
	if !reflect.DeepEqual(a, b) {
		t.Error("相同输入两次调用结果不一致")
	}
}

func TestAllocateKaraokeWordSpansWeights(t *testing.T) {
	spans := AllocateKaraokeWordSpans("a bb ccc", 6.0)
	if len(spans) != 3 {
		t.Fatalf("期望3个词条目，实际 %d 个", len(spans))
	}
	wantDurations := []float64{1.0, 2.0, 3.0}
	for i, want := range wantDurations {
		got := spans[i].End - spans[i].Start
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("第%d个词时长应为 %f，实际 %f", i, want, got)
		}
		if spans[i].Index != i {
			t.Errorf("第%d个词索引不正确: %d", i, spans[i].Index)
		}
	}
	if spans[2].End != 6.0 {
		t.Errorf("末词结束时间应强制等于6.0，实际 %f", spans[2].End)
	}
}

func TestAllocateKaraokeWordSpansSingleWord(t *testing.T) {
	spans := AllocateKaraokeWordSpans("hello", 3.3)
	if len(spans) != 1 {
		t.Fatalf("单个词应返回单个条目，实际 %d 个", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 3.3 {
		t.Errorf("单词条目应覆盖全时长: %+v", spans[0])
	}
}

func TestAllocateKaraokeWordSpansEmptyText(t *testing.T) {
	spans := AllocateKaraokeWordSpans("", 2.0)
	if len(spans) != 1 {
		t.Fatalf("空文本应返回单个伪条目，实际 %d 个", len(spans))
	}
	if spans[0].Text != "" || spans[0].Index != 0 || spans[0].End != 2.0 {
		t.Errorf("空文本伪条目不正确: %+v", spans[0])
	}
}

func TestAllocateKaraokeWordSpansContiguous(t *testing.T) {
	spans := AllocateKaraokeWordSpans("several words of rather unequal lengths indeed", 11.0)
	for i := 1; i < len(spans); i++ {
		if spans[i-1].End != spans[i].Start {
			t.Errorf("第%d个词与前一个词之间不连续", i)
		}
	}
	if spans[len(spans)-1].End != 11.0 {
		t.Errorf("末词应结束于11.0，实际 %f", spans[len(spans)-1].End)
	}
}

func TestAlignWordsToOriginalCloseCounts(t *testing.T) {
	words := []WordStamp{
		{Start: 0.0, End: 0.4, Word: " Hallo"},
		{Start: 0.4, End: 0.9, Word: "word"},
		{Start: 0.9, End: 1.5, Word: "their"},
	}
	aligned := AlignWordsToOriginal(words, "Hello World there")

	if len(aligned) != 3 {
		t.Fatalf("期望3个词，实际 %d 个", len(aligned))
	}
	wantWords := []string{"hello", "world", "there"}
	for i, w := range wantWords {
		if aligned[i].Word != w {
			t.Errorf("第%d个词应取原文 %q，实际 %q", i, w, aligned[i].Word)
		}
		if aligned[i].Start != words[i].Start || aligned[i].End != words[i].End {
			t.Errorf("第%d个词应保留识别时间戳", i)
		}
	}
}

func TestAlignWordsToOriginalExtraOriginalWords(t *testing.T) {
	words := []WordStamp{
		{Start: 0.0, End: 0.5, Word: "one"},
		{Start: 0.5, End: 1.0, Word: "two"},
	}
	aligned := AlignWordsToOriginal(words, "one two three four")

	if len(aligned) != 4 {
		t.Fatalf("期望4个词，实际 %d 个", len(aligned))
	}
	// 多出的原文词从最后已知时间起依次补0.5秒
	if aligned[2].Start != 1.0 || aligned[2].End != 1.5 {
		t.Errorf("第3个词补时不正确: %+v", aligned[2])
	}
	if aligned[3].Start != 1.5 || aligned[3].End != 2.0 {
		t.Errorf("第4个词补时不正确: %+v", aligned[3])
	}
}

func TestAlignWordsToOriginalLargeMismatch(t *testing.T) {
	words := []WordStamp{
		{Start: 0.0, End: 0.5, Word: "Completely"},
		{Start: 0.5, End: 1.0, Word: "different"},
	}
	aligned := AlignWordsToOriginal(words, "one two three four five six")
	if !reflect.DeepEqual(aligned, words) {
		t.Error("词数相差超过2时应原样返回识别结果")
	}
}

func TestAlignWordsToOriginalEmptyInputs(t *testing.T) {
	words := []WordStamp{{Start: 0, End: 1, Word: "hi"}}
	if got := AlignWordsToOriginal(words, "   "); !reflect.DeepEqual(got, words) {
		t.Error("原文为空时应原样返回识别结果")
	}
	if got := AlignWordsToOriginal(nil, "hello"); len(got) != 0 {
		t.Error("识别结果为空时应返回空")
	}
}

func TestWordsToKaraokeSpans(t *testing.T) {
	words := []WordStamp{
		{Start: 0.0, End: 0.5, Word: " hello "},
		{Start: 0.5, End: 1.2, Word: "world"},
	}
	spans := WordsToKaraokeSpans(words)
	if len(spans) != 2 {
		t.Fatalf("期望2个条目，实际 %d 个", len(spans))
	}
	if spans[0].Text != "hello" {
		t.Errorf("文本应去除首尾空白: %q", spans[0].Text)
	}
	if spans[0].Index != 0 || spans[1].Index != 1 {
		t.Error("索引应为连续的从0开始")
	}
}
