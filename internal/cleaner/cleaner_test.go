package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "email and caption line",
			raw:  "Contact: a@b.com\nFigure 1: sample\nReal content here.",
			want: "Real content here.",
		},
		{
			name: "inline email",
			raw:  "Write to jane.doe@uni.edu for the data.",
			want: "Write to for the data.",
		},
		{
			name: "table and fig captions",
			raw:  "Intro text.\n  Table 2. Accuracy per model\nFig. 3: Loss curve\nMore text.",
			want: "Intro text. More text.",
		},
		{
			name: "caption reference inside sentence is kept",
			raw:  "As shown in Figure 2, accuracy improves.",
			want: "As shown in Figure 2, accuracy improves.",
		},
		{
			name: "source line",
			raw:  "Data.\nSource: survey 2020\nEnd.",
			want: "Data. End.",
		},
		{
			name: "non ascii",
			raw:  "naïve — approach α",
			want: "nave approach",
		},
		{
			name: "whitespace",
			raw:  "  a \t\n\n b  ",
			want: "a b",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.raw))
		})
	}
}

func TestCleanKeepsBodyAfterLeadingCaption(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "nbsp before caption",
			raw:  "\u00a0Figure 1: sample\nReal content here.",
			want: "Real content here.",
		},
		{
			name: "nbsp before caption with more lines",
			raw:  "\u00a0Figure 1: sample\nReal content here.\nMore real content follows.",
			want: "Real content here. More real content follows.",
		},
		{
			name: "bullet before table caption",
			raw:  "\u2022 Table 2. Overview\nThe actual body of the paper.",
			want: "The actual body of the paper.",
		},
		{
			name: "copyright before source line",
			raw:  "\u00a9 Source: publisher\nAbstract We study attention.",
			want: "Abstract We study attention.",
		},
		{
			name: "caption number on the next line",
			raw:  "Figure\n1: sample\nReal content here.",
			want: "Real content here.",
		},
		{
			name: "single line body is kept",
			raw:  "Real content here.",
			want: "Real content here.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.raw))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"Contact: a@b.com\nFigure 1: sample\nReal content here.",
		"éFigure 1: hidden caption",
		"a@bé.com is an address",
		"xé@y.org",
		"Results\n\n\nTable 1: x\n   Methods   and   more",
		"already clean text.",
		"   ",
		"Source: a\nSource: b",
		"\u00a0Figure 1: sample\nReal content here.",
		"Figure\n1: sample\nReal content here.",
		"[1]Figure 1: cited caption\nReal content here.",
		"\u2022 Table 2. Overview\nThe actual body.",
	}
	c, err := New(ReferencePatterns...)
	require.NoError(t, err)

	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "default cleaner on %q", in)

		once = c.Clean(in)
		assert.Equal(t, once, c.Clean(once), "reference cleaner on %q", in)
	}
}

func TestNewWithExtraPatterns(t *testing.T) {
	c, err := New(ReferencePatterns...)
	require.NoError(t, err)

	got := c.Clean("Prior work [12] uses <b>attention</b> (see Eq. 3).")
	assert.Equal(t, "Prior work uses attention (see ).", got)

	_, err = New("([")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	s := c.Stats("Contact: a@b.com\nFigure 1: sample\nReal content here.")
	assert.Equal(t, 52, s.OriginalLength)
	assert.Equal(t, len("Real content here."), s.CleanedLength)
	assert.Equal(t, 3, s.WordCount)
	assert.InDelta(t, 65.38, s.ReductionPercent, 0.01)

	assert.Equal(t, Stats{}, c.Stats(""))
}
