package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hazyhaar/mdconv/docmodel"
)

// defaultStyle is assigned to paragraphs that carry no explicit style.
const defaultStyle = "Normal"

// extractDocx reads word/document.xml in body order: every non-empty
// paragraph becomes a styled block and every top-level table a table
// block. Images under word/media/ are saved as docx_image_<uuid>.<ext>.
func (p *Pipeline) extractDocx(path string) (*Extraction, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	docFile := files["word/document.xml"]
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	styles := map[string]string{}
	if sf := files["word/styles.xml"]; sf != nil {
		styles, err = readZipXML(sf, parseDocxStyles)
		if err != nil {
			p.logger.Debug("docx: styles.xml unreadable", "path", path, "error", err)
			styles = map[string]string{}
		}
	}

	blocks, err := readZipXML(docFile, func(rd io.Reader) ([]docmodel.TextBlock, error) {
		return parseDocxBody(rd, styles)
	})
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	ext := &Extraction{Blocks: blocks}
	if cf := files["docProps/core.xml"]; cf != nil {
		ext.Title, _ = readZipXML(cf, parseCoreTitle)
	}
	ext.Images, err = p.saveZipImages(r.File, "word/media/", "docx_image")
	if err != nil {
		return nil, err
	}
	return ext, nil
}

func readZipXML[T any](f *zip.File, parse func(io.Reader) (T, error)) (T, error) {
	rc, err := f.Open()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return parse(rc)
}

// parseDocxStyles maps style ids ("Heading1") to display names ("heading 1").
func parseDocxStyles(rd io.Reader) (map[string]string, error) {
	names := make(map[string]string)
	dec := xml.NewDecoder(rd)
	var current string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return names, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "style":
			current = attr(se, "styleId")
		case "name":
			if current != "" {
				names[current] = attr(se, "val")
			}
		}
	}
}

// parseDocxBody walks the document body. Text is only taken from w:t runs;
// w:tab and w:br become a tab and a newline. Paragraphs inside a table cell
// are joined by newlines, nested tables flatten into their outer cell.
func parseDocxBody(rd io.Reader, styles map[string]string) ([]docmodel.TextBlock, error) {
	dec := xml.NewDecoder(rd)
	var (
		blocks    []docmodel.TextBlock
		text      strings.Builder
		style     string
		inText    bool
		tblDepth  int
		rows      [][]string
		row       []string
		cell      strings.Builder
		cellParas int
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
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					rows = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					cellParas = 0
				}
			case "p":
				text.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				text.WriteByte('\t')
			case "br", "cr":
				text.WriteByte('\n')
			}

		case xml.CharData:
			if inText {
				text.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				content := strings.TrimSpace(text.String())
				if tblDepth > 0 {
					if content != "" {
						if cellParas > 0 {
							cell.WriteByte('\n')
						}
						cell.WriteString(content)
						cellParas++
					}
					continue
				}
				if content == "" {
					continue
				}
				name := defaultStyle
				if style != "" {
					name = style
					if n, ok := styles[style]; ok && n != "" {
						name = n
					}
				}
				blocks = append(blocks, docmodel.TextBlock{
					Index:   len(blocks),
					Content: content,
					Kind:    docmodel.BlockParagraph,
					Style:   name,
				})
			case "tc":
				if tblDepth == 1 {
					row = append(row, cell.String())
				}
			case "tr":
				if tblDepth == 1 && len(row) > 0 {
					rows = append(rows, row)
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && len(rows) > 0 {
					blocks = append(blocks, tableBlock(len(blocks), rows))
				}
			}
		}
	}
	return blocks, nil
}

func tableBlock(index int, rows [][]string) docmodel.TextBlock {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = strings.Join(r, "\t")
	}
	return docmodel.TextBlock{
		Index:     index,
		Content:   strings.Join(lines, "\n"),
		Kind:      docmodel.BlockTable,
		TableRows: rows,
	}
}

// parseCoreTitle reads dc:title from an OOXML or ODF metadata part.
func parseCoreTitle(rd io.Reader) (string, error) {
	dec := xml.NewDecoder(rd)
	inTitle := false
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return strings.TrimSpace(sb.String()), nil
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inTitle = t.Name.Local == "title"
		case xml.CharData:
			if inTitle {
				sb.Write(t)
			}
		case xml.EndElement:
			if inTitle && t.Name.Local == "title" {
				return strings.TrimSpace(sb.String()), nil
			}
		}
	}
}

// saveZipImages saves every file under dir in the archive, sorted by name.
func (p *Pipeline) saveZipImages(files []*zip.File, dir, prefix string) ([]docmodel.ImageRef, error) {
	var media []*zip.File
	for _, f := range files {
		if strings.HasPrefix(f.Name, dir) && !strings.HasSuffix(f.Name, "/") {
			media = append(media, f)
		}
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })

	var refs []docmodel.ImageRef
	for _, f := range media {
		data, err := readZipFile(f)
		if err != nil {
			p.logger.Warn("embedded image skipped", "name", f.Name, "error", err)
			continue
		}
		ref, err := p.saveImage(prefix, path.Ext(f.Name), data, 0)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
