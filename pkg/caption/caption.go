// Package caption renders post captions within Instagram limits.
package caption

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf16"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
)

const (
	// MaxLength is the Instagram caption limit in UTF-16 code units.
	MaxLength = 2200
	// MaxHashtags is the number of hashtags Instagram accepts per post.
	MaxHashtags = 30
	// titleWidth bounds the display width of the item title.
	titleWidth = 80
)

// DefaultTemplate 默认文案模板
const DefaultTemplate = `🎬 Part {{.Part}}/{{.Total}} - {{.Title}}

🔁 Speed: {{.Speed}}x
📅 Posted automatically on {{.Date.Format "January 02, 2006"}}

{{.Hashtags}}`

// DefaultHashtags are used when none are configured.
var DefaultHashtags = []string{"autopost", "dailycontent", "reels", "viralvideo", "fyp"}

// Data 文案模板可以引用的字段
type Data struct {
	Title      string
	Collection string
	Part       int
	Total      int
	Speed      string
	Date       time.Time
	Hashtags   string
}

// Renderer 基于 text/template 生成文案
type Renderer struct {
	tmpl     *template.Template
	hashtags []string
}

// New 解析模板。tmpl 为空时使用 DefaultTemplate，hashtags 为 nil 时使用 DefaultHashtags
func New(tmpl string, hashtags []string) (*Renderer, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	t, err := template.New("caption").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, errors.Wrap(err, "invalid caption template")
	}
	if hashtags == nil {
		hashtags = DefaultHashtags
	}
	return &Renderer{tmpl: t, hashtags: hashtags}, nil
}

// Render 生成某个分段的文案
func (r *Renderer) Render(itemName, collection string, part, total int, speed float64, now time.Time) (string, error) {
	data := Data{
		Title:      Title(itemName),
		Collection: collection,
		Part:       part,
		Total:      total,
		Speed:      formatSpeed(speed),
		Date:       now,
		Hashtags:   Hashtags(r.hashtags),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render caption")
	}
	return Truncate(strings.TrimSpace(buf.String()), MaxLength), nil
}

// Title 去掉扩展名并限制显示宽度
func Title(name string) string {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	title = strings.TrimSpace(strings.NewReplacer("_", " ").Replace(title))
	if runewidth.StringWidth(title) > titleWidth {
		title = runewidth.Truncate(title, titleWidth, "…")
	}
	return title
}

// Hashtags 统一为 "#tag" 格式并用空格连接
func Hashtags(tags []string) string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		tag = strings.ReplaceAll(tag, " ", "")
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, "#"+tag)
		if len(out) == MaxHashtags {
			break
		}
	}
	return strings.Join(out, " ")
}

// Length 按 Instagram 的方式计数（UTF-16 code unit）
func Length(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Truncate cuts s at a rune boundary so that Length(s) <= max.
func Truncate(s string, max int) string {
	if Length(s) <= max {
		return s
	}
	n := 0
	for i, r := range s {
		w := 1
		if r >= 0x10000 {
			w = 2
		}
		if n+w > max {
			return s[:i]
		}
		n += w
	}
	return s
}

func formatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}
