package memo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		buffer     string
		suggestion string
		want       string
	}{
		{
			name:       "replace first section keeps following heading",
			buffer:     "## Summary\nOld text\n## Borrower\nOther",
			suggestion: "## Summary\nNew text",
			want:       "## Summary\nNew text\n## Borrower\nOther",
		},
		{
			name:       "plain text into empty buffer",
			buffer:     "",
			suggestion: "Hello",
			want:       "Hello",
		},
		{
			name:       "unknown heading appends after blank line",
			buffer:     "## Summary\nText",
			suggestion: "## Borrower\nAcme Corp",
			want:       "## Summary\nText\n\n## Borrower\nAcme Corp",
		},
		{
			name:       "replace last section runs to end of buffer",
			buffer:     "## A\na\n## B\nold b\nmore old b",
			suggestion: "## B\nnew b",
			want:       "## A\na\n## B\nnew b",
		},
		{
			name:       "only first occurrence replaced",
			buffer:     "## A\none\n## A\ntwo",
			suggestion: "## A\nfresh",
			want:       "## A\nfresh\n## A\ntwo",
		},
		{
			name:       "middle section multi-line body",
			buffer:     "intro\n## A\nx\n## B\ny\n## C\nz",
			suggestion: "## B\nline 1\nline 2\n",
			want:       "intro\n## A\nx\n## B\nline 1\nline 2\n## C\nz",
		},
		{
			name:       "heading must match a whole line",
			buffer:     "## Summary of terms\nx",
			suggestion: "## Summary\ny",
			want:       "## Summary of terms\nx\n\n## Summary\ny",
		},
		{
			name:       "heading only suggestion clears body",
			buffer:     "## A\nold\n## B\nb",
			suggestion: "## A",
			want:       "## A\n## B\nb",
		},
		{
			name:       "suggestion not starting with heading appends",
			buffer:     "## A\nold",
			suggestion: "Note:\n## A\nnew",
			want:       "## A\nold\n\nNote:\n## A\nnew",
		},
		{
			name:       "append trims surrounding whitespace",
			buffer:     "\n\n  ",
			suggestion: "## A\nbody\n\n",
			want:       "## A\nbody",
		},
		{
			name:       "crlf suggestion heading",
			buffer:     "## A\r\nold\r\n## B\r\nb",
			suggestion: "## A\r\nnew",
			want:       "## A\nnew\n## B\r\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.buffer, tt.suggestion))
		})
	}
}

func TestMergeReplacementIsIdempotent(t *testing.T) {
	buffer := "## 1. Executive Summary\nfirst draft\n## 2. Borrower Information\nAcme"
	suggestion := "## 1. Executive Summary\nsecond draft"

	once := Merge(buffer, suggestion)
	twice := Merge(once, suggestion)
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "## 1. Executive Summary"))
	assert.Contains(t, twice, "second draft")
	assert.NotContains(t, twice, "first draft")
}

func TestMergeAppendLaw(t *testing.T) {
	buffers := []string{"", "## A\na", "free text\n", "## A\na\n## B\nb"}
	for _, buffer := range buffers {
		got := Merge(buffer, "## Z\nnew section")
		prior := strings.TrimSpace(buffer)
		assert.Greater(t, len(got), len(prior))
		assert.True(t, strings.HasPrefix(got, prior), "buffer %q not a prefix of %q", prior, got)
	}
}

func TestHeadingKey(t *testing.T) {
	assert.Equal(t, "## 3. Loan Request", HeadingKey("## 3. Loan Request\nbody"))
	assert.Equal(t, "##Tight", HeadingKey("##Tight"))
	assert.Equal(t, "", HeadingKey("# Title\nbody"))
	assert.Equal(t, "", HeadingKey(""))
}

func TestDocumentInsertAndReplace(t *testing.T) {
	d := NewDocument()
	d.Insert("## A\none")
	d.Insert("## B\ntwo")
	assert.Equal(t, "## A\none\n\n## B\ntwo", d.Text())

	// the blank separator belongs to section A and is replaced with it
	d.Insert("## A\nuno")
	assert.Equal(t, "## A\nuno\n## B\ntwo", d.Text())

	d.Replace("typed by hand")
	assert.Equal(t, "typed by hand", d.Text())
}
