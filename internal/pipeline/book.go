package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/export"
	"github.com/aaj441/aaronos-core/internal/llm"
	"github.com/aaj441/aaronos-core/internal/runner"
)

const (
	chapterTokens = 8192
	outlineTokens = 4096

	// DefaultTargetLength is the per-chapter word target when none is given.
	DefaultTargetLength = 1500

	minChapterWords = 500
)

var styleGuides = map[string]string{
	"professional": "Clear, authoritative, business-appropriate. Use active voice and concrete examples.",
	"casual":       "Friendly, conversational, relatable. Feel free to use personal anecdotes and humor.",
	"academic":     "Scholarly, well-researched, citation-based. Formal tone with analytical depth.",
	"narrative":    "Story-driven, engaging, character-focused. Use vivid descriptions and compelling storytelling.",
}

// Outline is the author-supplied structure of the book to generate.
type Outline struct {
	Title        string           `json:"title"`
	Author       string           `json:"author,omitempty"`
	Chapters     []OutlineChapter `json:"chapters"`
	Style        string           `json:"style,omitempty"`
	TargetLength int              `json:"target_length,omitempty"`
}

// OutlineChapter describes one chapter to write.
type OutlineChapter struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Sections  []string `json:"sections"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// BookRequest is the validated input to a book generation job.
type BookRequest struct {
	Outline Outline `json:"outline"`
	Format  string  `json:"format"`
}

// Book builds plans for book generation jobs.
type Book struct {
	gen       llm.Generator
	outputDir string
	logger    *slog.Logger
}

// NewBook constructs the book generation pipeline. Exports land in outputDir.
func NewBook(gen llm.Generator, outputDir string, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{gen: gen, outputDir: outputDir, logger: logger}
}

type bookRun struct {
	workID   string
	req      BookRequest
	outline  Outline
	chapters []domain.GeneratedChapter
	filePath string
}

// Plan assembles the step sequence for one book generation job.
func (p *Book) Plan(workID string, req BookRequest) runner.Plan {
	run := &bookRun{workID: workID, req: req, outline: req.Outline}

	steps := []runner.Step{
		{Name: "enhance_outline", Weight: 10, Run: func(ctx context.Context, _ *runner.Progress) error {
			return p.enhanceOutline(ctx, run)
		}},
		{Name: "generate_chapters", Weight: 70, Run: func(ctx context.Context, prog *runner.Progress) error {
			return p.generateChapters(ctx, run, prog)
		}},
		{Name: "quality_check", Weight: 10, Run: func(ctx context.Context, _ *runner.Progress) error {
			p.qualityCheck(run.chapters)
			return nil
		}},
		{Name: "export", Weight: 10, Run: func(ctx context.Context, _ *runner.Progress) error {
			return p.export(run)
		}},
	}

	return runner.Plan{
		Steps: steps,
		Result: func() any {
			total := 0
			for _, ch := range run.chapters {
				total += ch.WordCount
			}
			target := run.outline.TargetLength
			if target <= 0 {
				target = DefaultTargetLength
			}
			return &domain.BookResult{
				Title:      run.outline.Title,
				Chapters:   run.chapters,
				TotalWords: total,
				FilePath:   run.filePath,
				Format:     run.req.Format,
				Quality:    Quality(run.chapters, target),
			}
		},
	}
}

func (p *Book) enhanceOutline(ctx context.Context, run *bookRun) error {
	chapterList := make([]string, len(run.outline.Chapters))
	for i, ch := range run.outline.Chapters {
		chapterList[i] = fmt.Sprintf("%d. %s (sections: %s)", ch.Number, ch.Title, strings.Join(ch.Sections, ", "))
	}

	prompt := fmt.Sprintf(`You are an expert book editor. Review and enhance this eBook outline to ensure logical flow and comprehensive coverage.

Title: %s
Chapters:
%s

Provide an enhanced version with:
1. Validated chapter order
2. Additional key points for each chapter if needed
3. Suggested improvements to section structure

Return the enhanced outline as JSON:
{"chapters": [{"number": 1, "title": "...", "sections": ["..."], "key_points": ["..."]}]}`,
		run.outline.Title, strings.Join(chapterList, "\n"))

	text, err := p.gen.Generate(ctx, prompt, outlineTokens)
	if err != nil {
		return fmt.Errorf("enhance outline: %w", err)
	}

	var decoded struct {
		Chapters []OutlineChapter `json:"chapters"`
	}
	// The original outline drives generation when the enhancement is
	// unusable or changes the chapter count.
	if llm.DecodeObject(text, &decoded) && len(decoded.Chapters) == len(run.outline.Chapters) {
		run.outline.Chapters = decoded.Chapters
	} else {
		p.logger.Warn("outline enhancement not usable, keeping original",
			slog.String("title", run.outline.Title))
	}
	return nil
}

func (p *Book) generateChapters(ctx context.Context, run *bookRun, prog *runner.Progress) error {
	style := run.outline.Style
	if _, ok := styleGuides[style]; !ok {
		style = "professional"
	}
	target := run.outline.TargetLength
	if target <= 0 {
		target = DefaultTargetLength
	}

	total := len(run.outline.Chapters)
	for i, ch := range run.outline.Chapters {
		p.logger.Info("generating chapter",
			slog.String("title", ch.Title),
			slog.Int("chapter", i+1),
			slog.Int("total", total),
		)

		content, err := p.generateChapter(ctx, run.outline.Title, ch, style, target)
		if err != nil {
			return fmt.Errorf("chapter %d %q: %w", ch.Number, ch.Title, err)
		}
		words := len(strings.Fields(content))
		if words == 0 {
			return fmt.Errorf("chapter %d %q: generation produced no content", ch.Number, ch.Title)
		}

		run.chapters = append(run.chapters, domain.GeneratedChapter{
			Number:    ch.Number,
			Title:     ch.Title,
			Content:   content,
			WordCount: words,
		})
		prog.Report(ctx, i+1, total)
	}
	return nil
}

func (p *Book) generateChapter(ctx context.Context, bookTitle string, ch OutlineChapter, style string, target int) (string, error) {
	keyPoints := "None specified"
	if len(ch.KeyPoints) > 0 {
		keyPoints = strings.Join(ch.KeyPoints, "; ")
	}

	prompt := fmt.Sprintf(`You are a professional writer creating content for an eBook titled %q.

Write Chapter %d: %q

Style: %s
Target Length: Approximately %d words
Sections to Cover: %s
Key Points: %s

Requirements:
- Engaging and well-structured content
- Clear transitions between sections
- Practical examples and insights where appropriate
- Professional tone appropriate for the subject matter

Write the complete chapter content now.`,
		bookTitle, ch.Number, ch.Title, styleGuides[style], target,
		strings.Join(ch.Sections, ", "), keyPoints)

	return p.gen.Generate(ctx, prompt, chapterTokens)
}

// qualityCheck flags suspicious output. Advisory only: findings are logged
// and never abort the run.
func (p *Book) qualityCheck(chapters []domain.GeneratedChapter) {
	if len(chapters) == 0 {
		return
	}

	tooShort := 0
	totalWords := 0
	for _, ch := range chapters {
		totalWords += ch.WordCount
		if ch.WordCount < minChapterWords {
			tooShort++
		}
	}
	if tooShort > 0 {
		p.logger.Warn("chapters below minimum length",
			slog.Int("count", tooShort),
			slog.Int("min_words", minChapterWords),
		)
	}

	avg := float64(totalWords) / float64(len(chapters))
	inconsistent := 0
	for _, ch := range chapters {
		if math.Abs(float64(ch.WordCount)-avg) > avg*0.5 {
			inconsistent++
		}
	}
	if inconsistent > 2 {
		p.logger.Warn("chapter lengths vary significantly",
			slog.Int("count", inconsistent),
		)
	}
}

func (p *Book) export(run *bookRun) error {
	path, err := export.Book(p.outputDir, run.workID, run.outline.Title, authorOrDefault(run.outline.Author), run.chapters, run.req.Format)
	if err != nil {
		return err
	}
	run.filePath = path
	return nil
}

func authorOrDefault(author string) string {
	if author == "" {
		return "Unknown"
	}
	return author
}

// Quality scores a generated book from chapter-length consistency and target
// attainment.
func Quality(chapters []domain.GeneratedChapter, targetLength int) float64 {
	if len(chapters) == 0 {
		return 0.7
	}

	quality := 0.7

	total := 0
	for _, ch := range chapters {
		total += ch.WordCount
	}
	avg := float64(total) / float64(len(chapters))

	variance := 0.0
	for _, ch := range chapters {
		d := float64(ch.WordCount) - avg
		variance += d * d
	}
	variance /= float64(len(chapters))
	if variance < avg*0.3 {
		quality += 0.15
	}

	met := 0
	for _, ch := range chapters {
		if float64(ch.WordCount) >= float64(targetLength)*0.8 {
			met++
		}
	}
	if float64(met)/float64(len(chapters)) > 0.8 {
		quality += 0.15
	}

	if quality > 1.0 {
		quality = 1.0
	}
	return quality
}
