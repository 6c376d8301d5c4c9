package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"paper-rag/internal/models"
)

var (
	// ErrUnreadable covers corrupted, encrypted and otherwise unparsable input
	ErrUnreadable        = errors.New("document is unreadable, corrupted or password-protected")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

const (
	defaultPageNumber = 1
)

func init() {
	// keep pdfcpu from creating a config dir under the user's home
	api.DisableConfigDir()
}

// SupportedExtensions lists the file types Extract understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt", ".md"}

// ExtractFile reads a file from disk and extracts it
func ExtractFile(filePath string) (*models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return Extract(filepath.Base(filePath), data)
}

// Extract converts uploaded bytes into a document of per-page raw text.
// The format is chosen by the filename extension.
func Extract(filename string, data []byte) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		pages []models.Page
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = parsePDF(data)
	case ".docx":
		pages, err = parseDOCX(data)
	case ".pptx":
		pages, err = parsePPTX(data)
	case ".xlsx":
		pages, err = parseXLSX(data)
	case ".ods":
		pages, err = parseODS(data)
	case ".txt", ".md":
		pages = []models.Page{{Number: defaultPageNumber, Text: string(data)}}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", filename, ErrUnreadable, err)
	}

	log.Debug().Str("filename", filename).Int("pages", len(pages)).Msg("Extracted document")
	return models.NewDocument(filename, pages), nil
}

func parsePDF(data []byte) (pages []models.Page, err error) {
	// structure check first; the text extractor panics on some broken files
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if pdfCtx.Encrypt != nil {
		log.Debug().Msg("PDF is encrypted, attempting extraction with empty password")
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf text extraction panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, nil
}

func parseDOCX(data []byte) ([]models.Page, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := extractTextFromXML(r.Editable().GetContent(), "w:t", "</w:p>")
	return []models.Page{{Number: defaultPageNumber, Text: content}}, nil
}

func parsePPTX(data []byte) ([]models.Page, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for _, file := range f.File {
		num, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slideText := extractTextFromXML(string(data), "a:t", "</a:p>")
		if strings.TrimSpace(slideText) != "" {
			pages = append(pages, models.Page{Number: num, Text: slideText})
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// slideNumber parses "ppt/slides/slideN.xml"
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseXLSX(data []byte) ([]models.Page, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

func parseODS(data []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

// extractTextFromXML collects the character data of every <tag> element,
// starting a new line at each paragraph end marker
func extractTextFromXML(xmlContent, tag, paragraphEnd string) string {
	var text strings.Builder
	for _, para := range strings.Split(xmlContent, paragraphEnd) {
		var line strings.Builder
		for _, part := range strings.Split(para, "<"+tag)[1:] {
			// skip tags such as <w:tab> that share the prefix
			open := strings.Index(part, ">")
			if open < 0 || (open > 0 && part[0] != ' ') {
				continue
			}
			endIdx := strings.Index(part, "</"+tag+">")
			if endIdx > open {
				line.WriteString(html.UnescapeString(part[open+1 : endIdx]))
			}
		}
		if line.Len() > 0 {
			text.WriteString(line.String() + "\n")
		}
	}
	return text.String()
}
