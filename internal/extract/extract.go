// Package extract turns HTML editions of a book into plain text that the segmenter
// can read: headings become their own lines, paragraphs are separated by blank lines
// and images are dropped.
package extract

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// Options controls how an HTML book is reduced to text.
type Options struct {
	// Selector is an optional CSS selector for the element(s) holding the book text
	Selector string
	// Readability runs go-readability before conversion to drop site navigation
	Readability bool
	// BaseURL gives readability context for relative links (may be nil)
	BaseURL *url.URL
}

// blankRunRegex matches three or more newlines, optionally with spaces between them
var blankRunRegex = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// IsHTML reports whether a document should go through ToText, judging by its name
// and, when known, its HTTP content type.
func IsHTML(name, contentType string) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// ToText converts an HTML document to plain text.
//
// Parameters:
//   - content: io.Reader containing HTML
//   - opts: selector and readability settings; the zero value converts the whole document
//
// Returns the text or an error if parsing or conversion fails.
func ToText(content io.Reader, opts Options) (string, error) {
	if opts.Selector != "" {
		return extractWithSelector(content, opts.Selector)
	}
	if opts.Readability {
		return extractMainContent(content, opts.BaseURL)
	}
	return convertAllHTML(content)
}

// extractMainContent uses go-readability to isolate the main text
func extractMainContent(content io.Reader, baseURL *url.URL) (string, error) {
	if baseURL == nil {
		baseURL = &url.URL{}
	}

	article, err := readability.FromReader(content, baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract main content: %w", err)
	}

	return convertToText(article.Content)
}

// extractWithSelector keeps only the elements matching selector
func extractWithSelector(content io.Reader, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	selection := doc.Find(selector)
	if selection.Length() == 0 {
		return "", fmt.Errorf("no elements found matching selector: %s", selector)
	}

	var htmlParts []string
	selection.Each(func(i int, s *goquery.Selection) {
		html, err := goquery.OuterHtml(s)
		if err == nil {
			htmlParts = append(htmlParts, html)
		}
	})

	if len(htmlParts) == 0 {
		return "", fmt.Errorf("failed to extract HTML from selection")
	}

	return convertToText(strings.Join(htmlParts, "\n"))
}

func convertAllHTML(content io.Reader) (string, error) {
	htmlBytes, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read HTML content: %w", err)
	}
	return convertToText(string(htmlBytes))
}

// convertToText renders HTML through the markdown converter with book-friendly rules
func convertToText(htmlString string) (string, error) {
	converter := md.NewConverter("", true, nil)

	converter.Use(md.Plugin(func(c *md.Converter) []md.Rule {
		return []md.Rule{
			// headings become bare lines so "CHAPTER ONE" survives without '#'
			{
				Filter: []string{"h1", "h2", "h3", "h4", "h5", "h6"},
				Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
					heading := "\n\n" + strings.TrimSpace(content) + "\n\n"
					return &heading
				},
			},
			// illustrations carry no text
			{
				Filter: []string{"img", "figure", "script", "style"},
				Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
					empty := ""
					return &empty
				},
			},
		}
	}))

	text, err := converter.ConvertString(htmlString)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to text: %w", err)
	}

	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
