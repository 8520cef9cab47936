// CLAUDE:SUMMARY Markdown renderer: walks the merged stream, emits headings/tables/images, appends unreferenced images, post-processes spacing.
// CLAUDE:DEPENDS structure, docmodel
// CLAUDE:EXPORTS Renderer, New, BaseURL, PostProcess, ImagesHeading
package mdrender

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/mdconv/docmodel"
	"github.com/hazyhaar/mdconv/structure"
)

// ImagesHeading introduces the images no merged item referenced.
const ImagesHeading = "## Images and Scanned Content"

const altTextLen = 100

// BaseURL is the public address image links point at.
type BaseURL struct {
	Scheme string `yaml:"scheme" json:"scheme"`
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
}

func (b BaseURL) String() string {
	scheme := b.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// Renderer turns a merged document into Markdown.
type Renderer struct {
	base BaseURL
	// format infers structure in free OCR text.
	format func(string) string
}

// New returns a Renderer linking images under base.
func New(base BaseURL) *Renderer {
	return &Renderer{base: base, format: structure.Format}
}

// ImageURL returns the absolute URL of a saved image.
func (r *Renderer) ImageURL(filename string) string {
	return r.base.String() + "/media/images/" + url.PathEscape(filename)
}

// ImageMarkdown returns the image syntax for im.
func (r *Renderer) ImageMarkdown(im docmodel.ImageRef) string {
	return fmt.Sprintf("![%s](%s)", altText(im), r.ImageURL(im.Filename))
}

func altText(im docmodel.ImageRef) string {
	text := strings.TrimSpace(im.OCRText)
	if text == "" {
		return "Image " + im.Filename
	}
	if utf8.RuneCountInString(text) > altTextLen {
		text = string([]rune(text)[:altTextLen]) + "..."
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "[", `\[`)
	return strings.ReplaceAll(text, "]", `\]`)
}

func caption(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	return "*Image text: " + strings.ReplaceAll(text, "*", `\*`) + "*"
}

func imageSection(im docmodel.ImageRef, text string) string {
	s := "---\n\n" + im.Markdown
	if c := caption(text); c != "" {
		s += "\n\n" + c
	}
	return s
}

// Render produces the Markdown for doc. It fills in the Markdown field of
// every image and is deterministic for a given document.
func (r *Renderer) Render(doc *docmodel.Document) string {
	for i := range doc.Images {
		if doc.Images[i].Filename != "" {
			doc.Images[i].Markdown = r.ImageMarkdown(doc.Images[i])
		}
	}

	var sections []string
	emitted := make(map[string]bool)
	emitImage := func(id, text string) {
		im, ok := doc.Image(id)
		if !ok || im.Markdown == "" || emitted[id] {
			return
		}
		emitted[id] = true
		sections = append(sections, imageSection(im, text))
	}

	if title := strings.TrimSpace(doc.Title); title != "" {
		sections = append(sections, "# "+oneLine(title))
	}

	for _, it := range doc.Merged {
		switch it.Kind {
		case docmodel.ItemParagraph:
			if p := paragraph(it); p != "" {
				sections = append(sections, p)
			}
			for _, id := range it.ImageIDs {
				im, _ := doc.Image(id)
				emitImage(id, im.OCRText)
			}
		case docmodel.ItemTable:
			if t := structure.Table(it.Rows); t != "" {
				sections = append(sections, t)
			}
		case docmodel.ItemImageOCR:
			emitImage(it.ImageID, it.Content)
		case docmodel.ItemOCRText:
			if t := strings.TrimSpace(r.format(it.Content)); t != "" {
				sections = append(sections, t)
			}
		default:
			if c := strings.TrimSpace(it.Content); c != "" {
				sections = append(sections, c)
			}
		}
	}

	body := strings.Join(sections, "\n\n")

	var trailing []string
	for _, im := range doc.Images {
		if im.Markdown == "" || emitted[im.ID] || strings.Contains(body, im.Markdown) {
			continue
		}
		emitted[im.ID] = true
		trailing = append(trailing, imageSection(im, im.OCRText))
	}
	if len(trailing) > 0 {
		if body != "" {
			body += "\n\n"
		}
		body += ImagesHeading + "\n\n" + strings.Join(trailing, "\n\n")
	}

	return PostProcess(body)
}

func paragraph(it docmodel.MergedItem) string {
	content := strings.TrimSpace(it.Content)
	if content == "" {
		return ""
	}
	style := strings.ToLower(it.Style)
	if strings.Contains(style, "heading") || strings.Contains(style, "title") {
		return strings.Repeat("#", headingLevel(style)) + " " + oneLine(content)
	}
	return content
}

// headingLevel is the first digit 1-6 found in a style name, or 1.
func headingLevel(style string) int {
	for _, r := range style {
		if r >= '1' && r <= '6' {
			n, _ := strconv.Atoi(string(r))
			return n
		}
	}
	return 1
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
