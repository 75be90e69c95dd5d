package services

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"lalaquiz-backend/internal/models"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	maxAttachmentBytes = 20 << 20
)

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// Decode turns uploaded files into attachments. Data is standard base64,
// optionally as a data: URL. The MIME type is sniffed when the client sent
// none or a generic one.
func (s *FileExtractService) Decode(files []models.FileData) ([]Attachment, error) {
	out := make([]Attachment, 0, len(files))
	for _, f := range files {
		data, err := decodeFileData(f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %s is not valid base64: %w", f.Name, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("file %s is empty", f.Name)
		}
		if len(data) > maxAttachmentBytes {
			return nil, fmt.Errorf("file %s exceeds %d MB limit", f.Name, maxAttachmentBytes>>20)
		}

		mimeType := strings.TrimSpace(strings.Split(f.MimeType, ";")[0])
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = strings.Split(mimetype.Detect(data).String(), ";")[0]
		}

		out = append(out, Attachment{Name: f.Name, MimeType: mimeType, Data: data})
	}
	return out, nil
}

func decodeFileData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// Flatten keeps the attachments accepted by inline and folds the text of every
// other attachment into the source text.
func (s *FileExtractService) Flatten(src Source, inline func(mimeType string) bool) (string, []Attachment, error) {
	var (
		text strings.Builder
		kept []Attachment
	)
	text.WriteString(src.Text)

	for _, att := range src.Files {
		if inline != nil && inline(att.MimeType) {
			kept = append(kept, att)
			continue
		}
		extracted, err := s.ExtractText(att)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&text, "\n\n---FILE: %s---\n%s", att.Name, extracted)
	}

	return strings.TrimSpace(text.String()), kept, nil
}

// ExtractText reads the plain text of a PDF, DOCX or text attachment.
func (s *FileExtractService) ExtractText(att Attachment) (string, error) {
	switch {
	case att.MimeType == mimePDF:
		return s.extractPDF(att.Data)
	case att.MimeType == mimeDOCX:
		return s.extractDOCX(att.Data)
	case strings.HasPrefix(att.MimeType, "text/"), att.MimeType == "application/json":
		text := normalizeExtractedText(string(att.Data))
		if text == "" {
			return "", fmt.Errorf("text file %s is empty", att.Name)
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported file type for text extraction: %s (%s)", att.Name, att.MimeType)
	}
}

func (s *FileExtractService) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text := normalizeExtractedText(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text found in pdf")
	}

	return text, nil
}

func (s *FileExtractService) extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		documentXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		break
	}

	if len(documentXML) == 0 {
		return "", fmt.Errorf("docx document.xml not found")
	}

	text := normalizeExtractedText(stripDOCXML(documentXML))
	if text == "" {
		return "", fmt.Errorf("no extractable text found in docx")
	}

	return text, nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

var xmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

func stripDOCXML(src []byte) string {
	s := string(src)

	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntities.Replace(s)
}

// normalizeExtractedText trims every line and collapses runs of blank lines.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var buf strings.Builder
	emptyCount := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
