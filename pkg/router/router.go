// Package router classifies uploaded artifacts into a source type and selects
// the extraction adapter that handles them.
package router

import (
	"archive/zip"
	"bytes"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Adapter identifiers. The extraction registry is keyed by these values.
const (
	AdapterCSV      = "tabular.csv"
	AdapterXLSX     = "tabular.xlsx"
	AdapterPDF      = "document.pdf"
	AdapterDOCX     = "document.docx"
	AdapterVision   = "image.vision"
	AdapterFreeText = "freetext.llm"
)

const (
	mimeCSV  = "text/csv"
	mimeTSV  = "text/tab-separated-values"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
	mimeMD   = "text/markdown"
	mimeZip  = "application/zip"
	mimeBin  = "application/octet-stream"
)

// extMIMETypes maps file extensions to MIME types. A fixed table keeps Route
// independent of the host's mime database.
var extMIMETypes = map[string]string{
	".csv":  mimeCSV,
	".tsv":  mimeTSV,
	".xlsx": mimeXLSX,
	".docx": mimeDOCX,
	".pdf":  mimePDF,
	".txt":  mimeText,
	".text": mimeText,
	".md":   mimeMD,
	".eml":  mimeText,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

type route struct {
	sourceType models.SourceType
	adapterID  string
}

var mimeRoutes = map[string]route{
	mimeCSV:                    {models.SourceTypeTabular, AdapterCSV},
	"application/csv":          {models.SourceTypeTabular, AdapterCSV},
	mimeTSV:                    {models.SourceTypeTabular, AdapterCSV},
	mimeXLSX:                   {models.SourceTypeTabular, AdapterXLSX},
	mimePDF:                    {models.SourceTypeDocument, AdapterPDF},
	mimeDOCX:                   {models.SourceTypeDocument, AdapterDOCX},
	"image/png":                {models.SourceTypeImage, AdapterVision},
	"image/jpeg":               {models.SourceTypeImage, AdapterVision},
	"image/gif":                {models.SourceTypeImage, AdapterVision},
	"image/webp":               {models.SourceTypeImage, AdapterVision},
	"image/tiff":               {models.SourceTypeImage, AdapterVision},
	mimeText:                   {models.SourceTypeFreeText, AdapterFreeText},
	mimeMD:                     {models.SourceTypeFreeText, AdapterFreeText},
	"message/rfc822":           {models.SourceTypeFreeText, AdapterFreeText},
	"text/html":                {models.SourceTypeFreeText, AdapterFreeText},
}

// Result is the outcome of routing one artifact.
type Result struct {
	Supported  bool
	SourceType models.SourceType
	AdapterID  string
	MIMEType   string
	Reason     string
}

// Route classifies data using the declared MIME hint, the filename extension
// and content sniffing, in that order of trust. A generic hint such as
// text/plain yields to an extension naming a structured format. It never
// fails: input that matches no known source type yields Result{Supported: false}.
func Route(data []byte, mimeHint, filename string) Result {
	if len(data) == 0 {
		return Result{Reason: "empty upload"}
	}

	sniffed := normalizeMIME(http.DetectContentType(data))
	declared := normalizeMIME(mimeHint)
	byExt := extMIMETypes[strings.ToLower(filepath.Ext(filename))]

	order := []string{declared, byExt, sniffed}
	if genericHint(declared) && structured(byExt) {
		order = []string{byExt, declared, sniffed}
	}

	for _, candidate := range order {
		if candidate == "" || candidate == mimeBin {
			continue
		}
		if candidate == mimeZip {
			candidate = officeMIME(data)
			if candidate == "" {
				continue
			}
		}
		if candidate == mimeXLSX || candidate == mimeDOCX {
			// Office formats are zip containers; reject a mislabeled payload
			// rather than handing garbage to the parser.
			if officeMIME(data) != candidate {
				continue
			}
		}
		if r, ok := mimeRoutes[candidate]; ok {
			return Result{
				Supported:  true,
				SourceType: r.sourceType,
				AdapterID:  r.adapterID,
				MIMEType:   candidate,
			}
		}
	}

	mimeType := declared
	if mimeType == "" {
		mimeType = sniffed
	}
	return Result{MIMEType: mimeType, Reason: "unsupported source type " + mimeType}
}

// genericHint is true for declared types that browsers and clients send when
// they do not know better.
func genericHint(mimeType string) bool {
	return mimeType == mimeText || mimeType == mimeBin || mimeType == "binary/octet-stream"
}

// structured is true when mimeType routes to a non-free-text adapter.
func structured(mimeType string) bool {
	r, ok := mimeRoutes[mimeType]
	return ok && r.sourceType != models.SourceTypeFreeText
}

func normalizeMIME(s string) string {
	if idx := strings.Index(s, ";"); idx != -1 {
		s = s[:idx]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// officeMIME inspects a zip container and returns the OOXML MIME type it holds.
func officeMIME(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "xl/"):
			return mimeXLSX
		case strings.HasPrefix(f.Name, "word/"):
			return mimeDOCX
		}
	}
	return ""
}
