// CLAUDE:SUMMARY Extracts headings, paragraphs, tables and pictures from .odt (OpenDocument) files.
package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// extractODT parses an .odt file by reading content.xml from the ZIP archive.
// text:h becomes a "Heading N" block, text:p a "Normal" block (or "Title"
// when its style says so), table:table a table block. Images under
// Pictures/ are saved as odt_image_<uuid>.<ext>.
func (p *Pipeline) extractODT(path string) (*Extraction, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var contentFile, metaFile *zip.File
	for _, f := range r.File {
		switch f.Name {
		case "content.xml":
			contentFile = f
		case "meta.xml":
			metaFile = f
		}
	}
	if contentFile == nil {
		return nil, fmt.Errorf("content.xml not found in archive")
	}

	blocks, err := readZipXML(contentFile, parseODTBody)
	if err != nil {
		return nil, fmt.Errorf("parse content.xml: %w", err)
	}

	ext := &Extraction{Blocks: blocks}
	if metaFile != nil {
		ext.Title, _ = readZipXML(metaFile, parseCoreTitle)
	}
	ext.Images, err = p.saveZipImages(r.File, "Pictures/", "odt_image")
	if err != nil {
		return nil, err
	}
	return ext, nil
}

func parseODTBody(rd io.Reader) ([]docmodel.TextBlock, error) {
	dec := xml.NewDecoder(rd)
	var (
		blocks   []docmodel.TextBlock
		text     strings.Builder
		depth    int // nesting of text:p / text:h
		style    string
		tblDepth int
		rows     [][]string
		row      []string
		cell     []string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "h":
				depth++
				text.Reset()
				level := 1
				if n, err := strconv.Atoi(attr(t, "outline-level")); err == nil && n > 0 {
					level = n
				}
				style = "Heading " + strconv.Itoa(level)
			case "p":
				depth++
				text.Reset()
				style = defaultStyle
				if strings.Contains(strings.ToLower(attr(t, "style-name")), "title") {
					style = "Title"
				}
			case "s": // <text:s text:c="3"/> run of spaces
				if depth > 0 {
					n, err := strconv.Atoi(attr(t, "c"))
					if err != nil || n < 1 {
						n = 1
					}
					text.WriteString(strings.Repeat(" ", n))
				}
			case "tab":
				if depth > 0 {
					text.WriteByte('\t')
				}
			case "line-break":
				if depth > 0 {
					text.WriteByte('\n')
				}
			case "table":
				tblDepth++
				if tblDepth == 1 {
					rows = nil
				}
			case "table-row":
				if tblDepth == 1 {
					row = nil
				}
			case "table-cell":
				if tblDepth == 1 {
					cell = nil
				}
			}

		case xml.CharData:
			if depth > 0 {
				text.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "h", "p":
				depth--
				if depth > 0 {
					continue
				}
				content := strings.TrimSpace(text.String())
				if content == "" {
					continue
				}
				if tblDepth > 0 {
					cell = append(cell, content)
					continue
				}
				blocks = append(blocks, docmodel.TextBlock{
					Index:   len(blocks),
					Content: content,
					Kind:    docmodel.BlockParagraph,
					Style:   style,
				})
			case "table-cell":
				if tblDepth == 1 {
					row = append(row, strings.Join(cell, "\n"))
				}
			case "table-row":
				if tblDepth == 1 && len(row) > 0 {
					rows = append(rows, row)
				}
			case "table":
				tblDepth--
				if tblDepth == 0 && len(rows) > 0 {
					blocks = append(blocks, tableBlock(len(blocks), rows))
				}
			}
		}
	}
	return blocks, nil
}
