package transcripts

import (
	"sort"
	"unicode"
)

// marker is a word or phrase that usually opens a new sentence when the
// recognizer emitted no punctuation. Latin markers only match whole words,
// ignoring case.
type marker struct {
	text []rune
	word bool
}

var (
	// topic shift, contrast, cause, time transition
	strongMarkers = newMarkers(
		"我跟你讲", "我跟你講", "跟你说", "跟你說", "告訴你", "告诉你",
		"重点是", "重點是", "关键是", "關鍵是",
		"但是", "不过", "不過", "然而", "可是", "只是", "不料",
		"所以", "因此", "因为", "因為", "由于", "由於", "既然",
		"接下来", "接下來", "然后", "然後", "后来", "後來", "最后", "最後",
		"现在", "現在", "今天", "刚才", "剛才",
		"but", "however", "so", "because", "therefore", "then", "now", "today", "finally", "anyway",
	)

	// explanation and emphasis
	mediumMarkers = newMarkers(
		"也就是说", "也就是說", "换句话说", "換句話說", "简单来说", "簡單來說",
		"比如说", "比如說", "举个例子", "舉個例子",
		"你知道吗", "你知道嗎", "你想想看", "真的是", "竟然", "居然",
		"特别是", "特別是", "尤其是", "就是说", "就是說", "主要是",
		"这样", "這樣", "那样", "那樣", "这么", "這麼", "那么", "那麼",
		"for example", "in other words", "that is", "especially", "you know", "basically",
	)

	// short demonstratives and interrogatives that make acceptable break
	// points inside an overlong line
	breakWords = [][]rune{
		[]rune("这个"), []rune("這個"), []rune("那个"), []rune("那個"),
		[]rune("一个"), []rune("一個"), []rune("什么"), []rune("什麼"),
		[]rune("怎么"), []rune("怎麼"), []rune("为什么"), []rune("為什麼"),
	}
)

// newMarkers orders markers longest first so a marker is never matched
// inside a longer one that contains it.
func newMarkers(words ...string) []marker {
	ms := make([]marker, 0, len(words))
	for _, w := range words {
		r := []rune(w)
		ms = append(ms, marker{text: r, word: isLatin(r)})
	}
	sort.SliceStable(ms, func(i, j int) bool {
		return len(ms[i].text) > len(ms[j].text)
	})
	return ms
}

func isLatin(r []rune) bool {
	for _, c := range r {
		if c > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (m marker) matchAt(text []rune, i int) bool {
	end := i + len(m.text)
	if end > len(text) {
		return false
	}
	for j, c := range m.text {
		got := text[i+j]
		if m.word {
			got = unicode.ToLower(got)
		}
		if got != c {
			return false
		}
	}
	if !m.word {
		return true
	}
	if i > 0 && isWordRune(text[i-1]) {
		return false
	}
	return end == len(text) || !isWordRune(text[end])
}

// longestMatch returns the length of the first marker matching at i, or 0.
func longestMatch(markers []marker, text []rune, i int) int {
	for _, m := range markers {
		if m.matchAt(text, i) {
			return len(m.text)
		}
	}
	return 0
}

func startsWithStrongMarker(line string) bool {
	return longestMatch(strongMarkers, []rune(line), 0) > 0
}
