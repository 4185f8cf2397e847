package extraction

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"lectern/internal/documents"
	"lectern/internal/services"
)

// extractPageContent returns the decoded content stream of page pageNr of the
// PDF read from rs, mirroring the per-page sequence of api.ExtractContent.
func extractPageContent(rs io.ReadSeeker, pageNr int, conf *model.Configuration) (io.Reader, error) {
	if conf == nil {
		conf = model.NewDefaultConfiguration()
	}
	conf.Cmd = model.EXTRACTCONTENT

	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, err
	}
	return pdfcpu.ExtractPageContent(ctx, pageNr)
}

func (s *Service) extractPDF(ctx context.Context, sourcePath string) ([]documents.PageInput, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf", "open source file", err)
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf", "read page count", err)
	}
	if pageCount == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf", "document has no pages", nil)
	}

	pages := make([]documents.PageInput, 0, pageCount)
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf", "rewind source file", err)
		}
		content, err := extractPageContent(f, pageNr, nil)
		if err != nil {
			return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf",
				fmt.Sprintf("extract page %d content", pageNr), err)
		}
		raw, err := io.ReadAll(content)
		if err != nil {
			return nil, services.Wrap(services.ErrExtraction, "extraction", "pdf",
				fmt.Sprintf("read page %d content", pageNr), err)
		}
		text := strings.TrimSpace(decodePageText(raw))
		if text == "" {
			continue
		}
		pages = append(pages, documents.PageInput{
			Number: pageNr,
			Text:   text,
		})
	}
	return pages, nil
}

// decodePageText pulls show-text operands out of a decoded PDF content
// stream. It handles literal strings with escapes and hex strings, inserts
// line breaks on text-positioning operators, and assumes a Latin-1
// compatible font encoding. Deliberately minimal; scanned or exotically
// encoded PDFs need a richer extractor upstream.
func decodePageText(content []byte) string {
	var out strings.Builder
	var word []byte
	flushWord := func() {
		if len(word) == 0 {
			return
		}
		token := string(word)
		word = word[:0]
		switch token {
		case "Td", "TD", "T*", "ET":
			out.WriteByte('\n')
		}
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			flushWord()
			text, next := readLiteralString(content, i+1)
			writeDecoded(&out, text)
			out.WriteByte(' ')
			i = next
		case c == '<':
			flushWord()
			if i+1 < len(content) && content[i+1] == '<' {
				// Dictionary open, not a hex string.
				i += 2
				continue
			}
			text, next := readHexString(content, i+1)
			writeDecoded(&out, text)
			out.WriteByte(' ')
			i = next
		case isOperatorChar(c):
			word = append(word, c)
			i++
		default:
			flushWord()
			i++
		}
	}
	flushWord()

	collapsed := strings.Join(strings.FieldsFunc(out.String(), func(r rune) bool {
		return r == ' ' || r == '\t'
	}), " ")
	collapsed = strings.ReplaceAll(collapsed, " \n", "\n")
	collapsed = strings.ReplaceAll(collapsed, "\n ", "\n")
	for strings.Contains(collapsed, "\n\n\n") {
		collapsed = strings.ReplaceAll(collapsed, "\n\n\n", "\n\n")
	}
	return collapsed
}

func isOperatorChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '*'
}

func readLiteralString(content []byte, start int) ([]byte, int) {
	var text []byte
	depth := 1
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return text, i + 1
			}
			next := content[i+1]
			switch next {
			case 'n':
				text = append(text, '\n')
			case 'r', 't', 'b', 'f':
				text = append(text, ' ')
			case '(', ')', '\\':
				text = append(text, next)
			default:
				if next >= '0' && next <= '7' {
					value, consumed := readOctal(content, i+1)
					text = append(text, value)
					i += consumed - 1
				}
			}
			i += 2
		case '(':
			depth++
			text = append(text, c)
			i++
		case ')':
			depth--
			if depth == 0 {
				return text, i + 1
			}
			text = append(text, c)
			i++
		default:
			text = append(text, c)
			i++
		}
	}
	return text, i
}

// readOctal reads up to three octal digits and returns the decoded byte and
// the digit count.
func readOctal(content []byte, start int) (byte, int) {
	value := 0
	consumed := 0
	for consumed < 3 && start+consumed < len(content) {
		c := content[start+consumed]
		if c < '0' || c > '7' {
			break
		}
		value = value*8 + int(c-'0')
		consumed++
	}
	return byte(value), consumed
}

func readHexString(content []byte, start int) ([]byte, int) {
	var digits []byte
	i := start
	for i < len(content) && content[i] != '>' {
		c := content[i]
		if isHexDigit(c) {
			digits = append(digits, c)
		}
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	text := make([]byte, 0, len(digits)/2)
	for j := 0; j+1 < len(digits); j += 2 {
		text = append(text, hexValue(digits[j])<<4|hexValue(digits[j+1]))
	}
	return text, i + 1
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// writeDecoded maps string bytes to runes, keeping printable ASCII and the
// Latin-1 range so accented vocabulary survives.
func writeDecoded(out *strings.Builder, text []byte) {
	for _, b := range text {
		switch {
		case b == '\n':
			out.WriteByte('\n')
		case b >= 0x20 && b < 0x7f:
			out.WriteByte(b)
		case b >= 0xa0:
			out.WriteRune(rune(b))
		}
	}
}
