package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// docxContent is the text of a Word document plus its first table.
type docxContent struct {
	Text  string
	Table [][]string
}

// readDOCX walks word/document.xml collecting paragraph text and the rows of
// the first top-level table.
func readDOCX(data []byte) (*docxContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, errors.New("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		out        docxContent
		text       strings.Builder
		para       strings.Builder
		cell       strings.Builder
		row        []string
		tableDepth int
		tablesSeen int
		inText     bool
	)

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					tablesSeen++
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				line := strings.TrimSpace(para.String())
				para.Reset()
				if line == "" {
					continue
				}
				if tableDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteString(" ")
					}
					cell.WriteString(line)
				}
				text.WriteString(line)
				text.WriteString("\n")
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tableDepth == 1 && tablesSeen == 1 {
					out.Table = append(out.Table, row)
				}
			case "tbl":
				tableDepth--
			}
		}
	}

	out.Text = text.String()
	return &out, nil
}
