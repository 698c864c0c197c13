// Package importer turns existing material (a web page or a PDF slide deck)
// into plain text that can be used as a presentation's content.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	// MaxBytes bounds fetched pages and uploaded files.
	MaxBytes       = 10 << 20
	defaultTimeout = 20 * time.Second
)

// ErrEmpty is returned when no text could be extracted.
var ErrEmpty = errors.New("no text found")

// Document is extracted material.
type Document struct {
	Title string
	Text  string
}

// FromHTML extracts the title and readable text of an HTML page. Scripts,
// styles and navigation chrome are dropped; headings and list items keep a
// Markdown marker.
func FromHTML(r io.Reader) (Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Document{}, fmt.Errorf("parsing html: %w", err)
	}

	w := &textWriter{}
	var doc Document
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "svg", "template":
				return
			case "title":
				if doc.Title == "" && n.FirstChild != nil {
					doc.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				w.block()
				w.raw(strings.Repeat("#", int(n.Data[1]-'0')) + " ")
			case "li":
				w.line()
				w.raw("- ")
			case "p", "div", "section", "article", "tr", "blockquote", "pre", "ul", "ol", "table":
				w.block()
			case "br":
				w.line()
			}
		}
		if n.Type == html.TextNode {
			w.text(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li":
				w.line()
			}
		}
	}
	walk(root)

	doc.Text = w.String()
	if doc.Text == "" {
		return doc, ErrEmpty
	}
	return doc, nil
}

type textWriter struct {
	b bytes.Buffer
}

func (w *textWriter) text(s string) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return
	}
	if w.b.Len() > 0 {
		last := w.b.Bytes()[w.b.Len()-1]
		if last != '\n' && last != ' ' {
			w.b.WriteByte(' ')
		}
	}
	w.b.WriteString(s)
}

func (w *textWriter) raw(s string) { w.b.WriteString(s) }

func (w *textWriter) line() {
	if w.b.Len() > 0 && !bytes.HasSuffix(w.b.Bytes(), []byte("\n")) {
		w.b.WriteByte('\n')
	}
}

func (w *textWriter) block() {
	if w.b.Len() == 0 {
		return
	}
	w.line()
	if !bytes.HasSuffix(w.b.Bytes(), []byte("\n\n")) {
		w.b.WriteByte('\n')
	}
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

// FetchURL downloads a page and extracts its text. A nil client uses a
// client with a 20s timeout.
func FetchURL(ctx context.Context, client *http.Client, url string) (Document, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf")

	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > MaxBytes {
		return Document{}, fmt.Errorf("document larger than %d bytes", MaxBytes)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/pdf") {
		return FromPDF(body)
	}
	return FromHTML(bytes.NewReader(body))
}

// FromPDF extracts the plain text of a PDF document.
func FromPDF(data []byte) (doc Document, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(plain, MaxBytes)); err != nil {
		return Document{}, fmt.Errorf("reading pdf text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return Document{}, ErrEmpty
	}
	return Document{Text: text}, nil
}
