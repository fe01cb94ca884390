package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// maxBodyBytes caps the text read from a single part.
const maxBodyBytes = 1 << 20

// parseBody extracts the plain-text body of a raw RFC 5322 message.
// text/plain wins over text/html; HTML is returned as-is when it is
// the only text part.
func parseBody(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return "", fmt.Errorf("read part body: %w", err)
		}

		switch mediaType {
		case "text/plain":
			if plain == "" {
				plain = string(body)
			}
		case "text/html":
			if html == "" {
				html = string(body)
			}
		}
	}

	if plain != "" {
		return strings.TrimSpace(plain), nil
	}
	return strings.TrimSpace(html), nil
}
