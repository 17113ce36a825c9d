package caption

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	r, err := New("", []string{"reels", "#daily", "Reels"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC)
	got, err := r.Render("day_01_part1.mp4", "day1", 1, 2, 1.25, now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "🎬 Part 1/2 - day 01 part1"))
	assert.Contains(t, got, "Speed: 1.25x")
	assert.Contains(t, got, "March 07, 2026")
	assert.True(t, strings.HasSuffix(got, "#reels #daily"), got)
}

func TestRenderer_CustomTemplate(t *testing.T) {
	r, err := New("{{.Collection}} #{{.Part}} of {{.Total}}", nil)
	require.NoError(t, err)

	got, err := r.Render("x.mp4", "day3", 2, 5, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "day3 #2 of 5", got)
}

func TestNew_InvalidTemplate(t *testing.T) {
	_, err := New("{{.Part", nil)
	require.Error(t, err)
}

func TestRenderer_TruncatesToLimit(t *testing.T) {
	r, err := New("{{.Title}} "+strings.Repeat("😀", 1500), nil)
	require.NoError(t, err)

	got, err := r.Render("a.mp4", "", 1, 1, 1, time.Now())
	require.NoError(t, err)
	assert.LessOrEqual(t, Length(got), MaxLength)
	assert.Equal(t, MaxLength, Length(got), "cut at the last whole emoji")
}

func TestLength(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty", input: "", want: 0},
		{name: "ascii", input: "hello", want: 5},
		{name: "cjk", input: "你好世界", want: 4},
		{name: "emoji is a surrogate pair", input: "😀", want: 2},
		{name: "mixed", input: "今天好开心😀", want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Length(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	// the emoji does not fit in the single remaining unit
	assert.Equal(t, "a", Truncate("a😀", 2))
	assert.Equal(t, "a😀", Truncate("a😀", 3))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Lecture part 3", Title("Lecture_part_3.mov"))

	long := strings.Repeat("長", 60) + ".mp4"
	got := Title(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Less(t, len([]rune(got)), 60)
}

func TestHashtags(t *testing.T) {
	assert.Equal(t, "#a #b", Hashtags([]string{" a ", "#b", "", "#"}))

	many := make([]string, 40)
	for i := range many {
		many[i] = strings.Repeat("x", i+1)
	}
	assert.Len(t, strings.Fields(Hashtags(many)), MaxHashtags)
}
