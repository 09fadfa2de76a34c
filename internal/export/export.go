// Package export renders persisted conversations into portable formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/parleybot/parley/internal/domain"
)

// Format identifies an export renderer.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTXT Format = "txt"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatTXT:
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type for HTTP delivery of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Filename builds a download filename for a conversation export.
func (f Format) Filename(conversationID string) string {
	return fmt.Sprintf("conversation-%s.%s", conversationID, f)
}

// Render writes the conversation's messages to w in the given format.
func Render(w io.Writer, f Format, msgs []domain.Message) error {
	switch f {
	case FormatCSV:
		return renderCSV(w, msgs)
	case FormatTXT:
		return renderTXT(w, msgs)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// renderCSV writes a header row followed by one row per message. Timestamps
// use RFC 3339 so spreadsheets sort them lexically.
func renderCSV(w io.Writer, msgs []domain.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "Bot", "Message"}); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := cw.Write([]string{m.Timestamp.Format(time.RFC3339), m.Speaker, m.Content}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// renderTXT writes a line-oriented transcript.
func renderTXT(w io.Writer, msgs []domain.Message) error {
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Speaker, m.Content); err != nil {
			return err
		}
	}
	return nil
}
