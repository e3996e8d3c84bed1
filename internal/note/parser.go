package note

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	dateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

var mdParser = goldmark.New()

// Doc holds the parsed representation of a note.
type Doc struct {
	Frontmatter map[string]any
	Body        string // text after frontmatter; what gets chunked
	Title       string
	Tags        []string
	Links       []string // wikilink targets found in the body
	Type        Type
	Date        string // YYYY-MM-DD when derivable from frontmatter or filename
}

// Parse extracts frontmatter, title, tags, and wikilinks from raw note text.
// Invalid frontmatter YAML is tolerated: the whole text is treated as body.
func Parse(id, text string) *Doc {
	fm, body := splitFrontmatter(text)

	d := &Doc{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body, id),
		Tags:        extractTags(body, fm),
		Links:       extractLinks(body),
		Type:        deriveType(fm, id),
		Date:        deriveDate(fm, id),
	}
	return d
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without valid frontmatter the entire text is body.
func splitFrontmatter(text string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n\r")

	if !strings.HasPrefix(trimmed, delim) {
		return nil, text
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, text
	}

	yamlBlock := rest[:idx]
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, text
	}
	return fm, body
}

// deriveTitle takes the frontmatter title, else the first level-1 or level-2
// heading, else the filename stem.
func deriveTitle(fm map[string]any, body, id string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	if h := firstHeading(body); h != "" {
		return h
	}
	return TitleFromID(id)
}

// firstHeading walks the markdown AST and returns the first H1 text, or the
// first H2 when no H1 exists.
func firstHeading(body string) string {
	source := []byte(body)
	doc := mdParser.Parser().Parse(gmtext.NewReader(source))

	var h1, h2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		text := headingText(heading, source)
		switch {
		case heading.Level == 1 && h1 == "":
			h1 = text
			return ast.WalkStop, nil
		case heading.Level == 2 && h2 == "":
			h2 = text
		}
		return ast.WalkContinue, nil
	})

	if h1 != "" {
		return h1
	}
	return h2
}

// Heading is one markdown heading located in a document.
type Heading struct {
	Level int
	Text  string
	Line  int // zero-based line index into the source
}

// Headings parses source as markdown and returns its headings in document
// order. Lines that merely look like headings, such as inside fenced code
// blocks, are not returned.
func Headings(source string) []Heading {
	src := []byte(source)
	doc := mdParser.Parser().Parse(gmtext.NewReader(src))

	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		start := h.Lines().At(0).Start
		out = append(out, Heading{
			Level: h.Level,
			Text:  headingText(h, src),
			Line:  bytes.Count(src[:start], []byte("\n")),
		})
		return ast.WalkContinue, nil
	})
	return out
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(source))
		case *ast.String:
			buf.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// extractLinks returns deduplicated wikilink targets, dropping aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags merges inline #tags with frontmatter tags.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if raw, ok := fm["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Fields(v) {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

func deriveType(fm map[string]any, id string) Type {
	if raw, ok := fm["type"].(string); ok {
		if t, known := ParseType(raw); known {
			return t
		}
	}
	return TypeFromPath(id)
}

// deriveDate prefers a frontmatter date, then a date embedded in the
// filename (daily notes are commonly named YYYY-MM-DD.md).
func deriveDate(fm map[string]any, id string) string {
	if raw, ok := fm["date"]; ok {
		switch v := raw.(type) {
		case string:
			if dateRe.MatchString(v) {
				return dateRe.FindString(v)
			}
		case time.Time:
			return v.Format("2006-01-02")
		}
	}
	return dateRe.FindString(TitleFromID(id))
}
