// Package mailtext turns raw message content into the text triage rules match against.
package mailtext

import (
	"mime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var skipElements = map[string]bool{"script": true, "style": true, "noscript": true, "head": true}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "section": true, "article": true,
}

// HTMLToText strips markup, dropping script and style content and collapsing whitespace.
func HTMLToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var (
		b         strings.Builder
		skipDepth int
		lastSpace = true
	)
	space := func() {
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipElements[tag] {
				if tok := z.Token(); tok.Type == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if blockElements[tag] {
				space()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipElements[tag] && skipDepth > 0 {
				skipDepth--
				continue
			}
			if blockElements[tag] {
				space()
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			for _, word := range strings.Fields(string(z.Text())) {
				if !lastSpace {
					b.WriteByte(' ')
				}
				b.WriteString(word)
				lastSpace = false
			}
		}
	}
}

var wordDecoder = mime.WordDecoder{}

// DecodeHeader decodes RFC 2047 encoded words and normalises to NFC.
// Undecodable input is returned as-is.
func DecodeHeader(raw string) string {
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		decoded = raw
	}
	return norm.NFC.String(decoded)
}

// PlainOrDerived returns plain, or text derived from htmlBody when plain is empty.
func PlainOrDerived(plain, htmlBody string) string {
	if strings.TrimSpace(plain) != "" || htmlBody == "" {
		return plain
	}
	return HTMLToText(htmlBody)
}
