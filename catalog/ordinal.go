package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultMarker 文件名中序号前面的标记
const DefaultMarker = "part"

// OrdinalParser 从文件名中解析标记后的序号
// 例如标记为 "part" 时 "Lecture_Part_03.mp4" -> 3
type OrdinalParser struct {
	re *regexp.Regexp
}

// NewOrdinalParser 创建不区分大小写的解析器，标记和数字之间的 '_' '-' '.' 空格会被忽略
func NewOrdinalParser(marker string) *OrdinalParser {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = DefaultMarker
	}
	return &OrdinalParser{
		re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker) + `[\s_.\-]*(\d+)`),
	}
}

// Parse 返回标记后的第一个数字，没有时返回 false
func (p *OrdinalParser) Parse(name string) (int, bool) {
	m := p.re.FindStringSubmatch(name)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Pick 返回序号等于 ordinal 的条目下标。
// 没有匹配时退回到第一个条目，并返回 degraded=true。
func (p *OrdinalParser) Pick(items []Item, ordinal int) (idx int, degraded bool) {
	for i, it := range items {
		if n, ok := p.Parse(it.Name); ok && n == ordinal {
			return i, false
		}
	}
	return 0, true
}
