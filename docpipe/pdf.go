// CLAUDE:SUMMARY PDF extractor using pdfcpu. One block per page plus the page images.
// CLAUDE:DEPENDS docpipe/quality.go, docpipe/media.go
package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/mdconv/docmodel"
)

// extractPDF reads every page of a PDF. Each page with text becomes one
// block carrying its page number; every image XObject of the page is saved
// as pdf_image_<uuid>.<ext> with the same page number. A page whose images
// cannot be decoded still contributes its text.
func (p *Pipeline) extractPDF(ctx context.Context, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	ext := &Extraction{}
	var allText strings.Builder

	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if pageText := extractPageText(pctx, pageNr); pageText != "" {
			ext.Blocks = append(ext.Blocks, docmodel.TextBlock{
				Index:   len(ext.Blocks),
				Content: pageText,
				Kind:    docmodel.BlockParagraph,
				Page:    pageNr,
			})
			if allText.Len() > 0 {
				allText.WriteByte('\n')
			}
			allText.WriteString(pageText)
		}

		images, err := p.savePageImages(pctx, pageNr)
		if err != nil {
			p.logger.Warn("pdf: page images skipped", "path", path, "page", pageNr, "error", err)
		}
		ext.Images = append(ext.Images, images...)
	}

	ext.Quality = computeQuality(pctx.PageCount, allText.String(), len(ext.Images) > 0 || detectImageStreams(pctx))
	if ext.Quality.NeedsOCR() {
		p.logger.Info("pdf: text layer is thin, relying on OCR",
			"path", path,
			"chars_per_page", ext.Quality.CharsPerPage,
			"images", len(ext.Images))
	}
	return ext, nil
}

// savePageImages writes the image XObjects of one page, in object order.
func (p *Pipeline) savePageImages(pctx *model.Context, pageNr int) ([]docmodel.ImageRef, error) {
	imgs, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
	if err != nil {
		return nil, err
	}
	objNrs := make([]int, 0, len(imgs))
	for nr := range imgs {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	var refs []docmodel.ImageRef
	for _, nr := range objNrs {
		img := imgs[nr]
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil || len(data) == 0 {
			continue
		}
		ref, err := p.saveImage("pdf_image", img.FileType, data, pageNr)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// extractPageText extracts text from a single PDF page via pdfcpu content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream text operators. Line
// moves (T*, ', Td with a vertical offset) become newlines.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() == 0 {
				break
			}
			if fields := bytes.Fields(line); len(fields) >= 3 && !bytes.Equal(fields[len(fields)-2], []byte("0")) {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText drops unprintable runes and trims every line. Line breaks
// are kept for structure inference downstream.
func cleanPDFText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimFunc(strings.Map(func(r rune) rune {
			if r == '\t' || r == ' ' || unicode.IsPrint(r) {
				return r
			}
			return -1
		}, l), unicode.IsSpace)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
