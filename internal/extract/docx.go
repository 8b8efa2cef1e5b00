package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// maxDocxPart caps how much of a single zip entry is read.
const maxDocxPart = 64 << 20

type docxTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// extractDOCX walks the main WordprocessingML part and returns one line per
// non-empty paragraph. lu4p/cat only recognizes bare <w:p> tags, which
// misses documents written by Word itself.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	body := docxBodyPart(zr)
	raw, err := readZipEntry(zr, body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	text, err := docxText(raw)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: parse %s: %w", body, err)
	}
	return text, nil
}

// docxBodyPart resolves the main document part, which need not live at the
// default path.
func docxBodyPart(zr *zip.Reader) string {
	raw, err := readZipEntry(zr, docxContentTypes)
	if err != nil {
		return docxDefaultBody
	}
	var types docxTypes
	if err := xml.Unmarshal(raw, &types); err != nil {
		return docxDefaultBody
	}
	for _, o := range types.Overrides {
		if o.ContentType == docxMainType && o.PartName != "" {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultBody
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxDocxPart))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}

// docxText streams the part and collects character data inside text runs.
// Content under mc:Fallback repeats mc:Choice and is skipped.
func docxText(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		lines     []string
		para      strings.Builder
		inText    bool
		fallbacks int
	)
	flush := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			lines = append(lines, s)
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Fallback":
				fallbacks++
			case "t":
				inText = true
			case "tab":
				if fallbacks == 0 {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if fallbacks == 0 {
					flush()
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "Fallback":
				fallbacks--
			case "t":
				inText = false
			case "p":
				if fallbacks == 0 {
					flush()
				}
			}
		case xml.CharData:
			if inText && fallbacks == 0 {
				para.Write(el)
			}
		}
	}
	flush()
	return strings.Join(lines, "\n"), nil
}
