package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/export"
)

func testOutline(chapters int) Outline {
	o := Outline{Title: "Practical Gardening", Author: "A. Writer", TargetLength: 20}
	for i := 1; i <= chapters; i++ {
		o.Chapters = append(o.Chapters, OutlineChapter{
			Number:   i,
			Title:    "Chapter Title",
			Sections: []string{"one", "two"},
		})
	}
	return o
}

func TestQuality(t *testing.T) {
	even := []domain.GeneratedChapter{
		{WordCount: 100}, {WordCount: 100}, {WordCount: 100},
	}
	// Zero variance and every chapter at target.
	assert.InDelta(t, 1.0, Quality(even, 100), 1e-9)

	uneven := []domain.GeneratedChapter{
		{WordCount: 10}, {WordCount: 500}, {WordCount: 1000},
	}
	// High variance and most chapters under 80% of target.
	assert.InDelta(t, 0.7, Quality(uneven, 1500), 1e-9)

	// No chapters: base only, no division by zero.
	assert.InDelta(t, 0.7, Quality(nil, 1500), 1e-9)
}

type chapterGen struct {
	contentFor func(chapter int) (string, error)
	calls      int
}

func (g *chapterGen) Generate(_ context.Context, prompt string, _ int) (string, error) {
	if strings.Contains(prompt, "expert book editor") {
		return "not json, keep the original outline", nil
	}
	g.calls++
	return g.contentFor(g.calls)
}

func TestBookPlanCompletes(t *testing.T) {
	gen := &chapterGen{contentFor: func(int) (string, error) {
		return strings.Repeat("word ", 25), nil
	}}
	dir := t.TempDir()

	p := NewBook(gen, dir, discardLogger())
	plan := p.Plan("bk-ok", BookRequest{Outline: testOutline(3), Format: export.FormatMarkdown})
	work := runPlan(t, domain.KindBookGeneration, plan)

	require.Equal(t, domain.WorkCompleted, work.Status)

	var result domain.BookResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	assert.Equal(t, "Practical Gardening", result.Title)
	assert.Len(t, result.Chapters, 3)
	assert.Equal(t, 75, result.TotalWords)
	assert.Equal(t, export.FormatMarkdown, result.Format)
	assert.InDelta(t, 1.0, result.Quality, 1e-9)

	_, err := os.Stat(result.FilePath)
	assert.NoError(t, err)
}

func TestBookEmptyChapterAbortsRun(t *testing.T) {
	gen := &chapterGen{contentFor: func(chapter int) (string, error) {
		if chapter == 2 {
			return "", nil
		}
		return strings.Repeat("word ", 25), nil
	}}
	dir := t.TempDir()

	p := NewBook(gen, dir, discardLogger())
	plan := p.Plan("bk-empty", BookRequest{Outline: testOutline(3), Format: export.FormatMarkdown})
	work := runPlan(t, domain.KindBookGeneration, plan)

	assert.Equal(t, domain.WorkFailed, work.Status)
	assert.Contains(t, work.Error, "chapter 2")
	assert.Contains(t, work.Error, "no content")
	assert.Nil(t, work.Result)

	// The export step never ran.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBookChapterGenerationErrorFailsJob(t *testing.T) {
	gen := &chapterGen{contentFor: func(chapter int) (string, error) {
		if chapter == 3 {
			return "", errors.New("model unavailable")
		}
		return "some words here", nil
	}}

	p := NewBook(gen, t.TempDir(), discardLogger())
	plan := p.Plan("bk-err", BookRequest{Outline: testOutline(3), Format: export.FormatMarkdown})
	work := runPlan(t, domain.KindBookGeneration, plan)

	assert.Equal(t, domain.WorkFailed, work.Status)
	assert.Contains(t, work.Error, "chapter 3")
	assert.Contains(t, work.Error, "model unavailable")
}

func TestBookOutlineEnhancementApplied(t *testing.T) {
	enhanced := `{"chapters": [{"number": 1, "title": "Improved Title", "sections": ["a", "b"], "key_points": ["kp"]}]}`
	gen := &fakeGenerator{responses: map[string]string{
		"expert book editor":  enhanced,
		"professional writer": strings.Repeat("word ", 25),
	}}

	p := NewBook(gen, t.TempDir(), discardLogger())
	plan := p.Plan("bk-enh", BookRequest{Outline: testOutline(1), Format: export.FormatMarkdown})
	work := runPlan(t, domain.KindBookGeneration, plan)

	require.Equal(t, domain.WorkCompleted, work.Status)
	var result domain.BookResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	require.Len(t, result.Chapters, 1)
	assert.Equal(t, "Improved Title", result.Chapters[0].Title)
}

func TestBookOutlineEnhancementMismatchIgnored(t *testing.T) {
	// Enhancement drops a chapter; the original outline must win.
	enhanced := `{"chapters": [{"number": 1, "title": "Only One", "sections": ["a"]}]}`
	gen := &fakeGenerator{responses: map[string]string{
		"expert book editor":  enhanced,
		"professional writer": strings.Repeat("word ", 25),
	}}

	p := NewBook(gen, t.TempDir(), discardLogger())
	plan := p.Plan("bk-mismatch", BookRequest{Outline: testOutline(2), Format: export.FormatMarkdown})
	work := runPlan(t, domain.KindBookGeneration, plan)

	require.Equal(t, domain.WorkCompleted, work.Status)
	var result domain.BookResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	assert.Len(t, result.Chapters, 2)
	assert.Equal(t, "Chapter Title", result.Chapters[0].Title)
}
