package export

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/aaj441/aaronos-core/internal/domain"
)

var htmlTmpl = template.Must(template.New("book").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Title}}</title>
  <meta name="author" content="{{.Author}}">
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
    h1 { color: #333; }
    h2 { color: #666; margin-top: 2em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p><em>by {{.Author}}</em></p>
{{range .Chapters}}  <h2>Chapter {{.Number}}: {{.Title}}</h2>
{{range .Paragraphs}}  <p>{{.}}</p>
{{end}}{{end}}</body>
</html>
`))

type htmlChapter struct {
	Number     int
	Title      string
	Paragraphs []string
}

func renderHTML(title, author string, chapters []domain.GeneratedChapter) []byte {
	data := struct {
		Title    string
		Author   string
		Chapters []htmlChapter
	}{Title: title, Author: author}

	for _, ch := range chapters {
		hc := htmlChapter{Number: ch.Number, Title: ch.Title}
		for _, p := range strings.Split(ch.Content, "\n") {
			if p = strings.TrimSpace(p); p != "" {
				hc.Paragraphs = append(hc.Paragraphs, p)
			}
		}
		data.Chapters = append(data.Chapters, hc)
	}

	var buf bytes.Buffer
	// The template is static, so rendering cannot fail.
	_ = htmlTmpl.Execute(&buf, data)
	return buf.Bytes()
}
