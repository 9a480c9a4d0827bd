// Package analyze implements C4: one analyzer per EvidenceType, each a pure
// function (bytes, metadata, promptConfig) -> TypedAnalysis delegating to
// the AI Provider Port (C3). Extractor and email-parser contracts are
// specified here only as interfaces per spec §6 ("out of scope... treated
// as pluggable extractor services"); default implementations cover the
// text-bearing cases directly expressible with the standard library.
package analyze

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// TextExtractor implements the extract_text(bytes, mime) -> str | Unsupported
// contract from §6. PDF text extraction and other binary format parsing are
// pluggable: this package ships a default that handles plain text and
// reports ExtractorUnsupported for anything else, triggering the PDF->image
// re-route the analyzer dispatch performs.
type TextExtractor interface {
	ExtractText(data []byte, mimeType string) (string, error)
}

type defaultTextExtractor struct{}

func NewDefaultTextExtractor() TextExtractor { return defaultTextExtractor{} }

func (defaultTextExtractor) ExtractText(data []byte, mimeType string) (string, error) {
	if strings.HasPrefix(mimeType, "text/") {
		return string(data), nil
	}
	return "", domain.NewExtractorUnsupportedError("extract_text", fmt.Errorf("mime %s is not text-extractable", mimeType))
}

// ParsedEmail is the email parser contract's return shape from §6.
type ParsedEmail struct {
	From       string
	To         []string
	CC         []string
	BCC        []string
	Subject    string
	Date       string
	MessageID  string
	InReplyTo  string
	References string
	Body       string
}

// EmailParser implements parse(bytes) -> {headers, body, attachments[]}.
type EmailParser interface {
	Parse(data []byte) (*ParsedEmail, error)
}

type defaultEmailParser struct{}

func NewDefaultEmailParser() EmailParser { return defaultEmailParser{} }

func (defaultEmailParser) Parse(data []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(strings.NewReader(string(data)))
	if err != nil {
		return nil, domain.NewExtractorUnsupportedError("email.parse", err)
	}
	body := new(strings.Builder)
	buf := make([]byte, 4096)
	for {
		n, readErr := msg.Body.Read(buf)
		if n > 0 {
			body.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}
	h := msg.Header
	return &ParsedEmail{
		From:       h.Get("From"),
		To:         splitAddrList(h.Get("To")),
		CC:         splitAddrList(h.Get("Cc")),
		BCC:        splitAddrList(h.Get("Bcc")),
		Subject:    h.Get("Subject"),
		Date:       h.Get("Date"),
		MessageID:  h.Get("Message-Id"),
		InReplyTo:  h.Get("In-Reply-To"),
		References: h.Get("References"),
		Body:       body.String(),
	}, nil
}

func splitAddrList(raw string) []string {
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return strings.Split(raw, ",")
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
