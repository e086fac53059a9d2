package htmldoc

import (
	"regexp"
	"strings"
)

// placeholder survives tokenizing and whitespace collapsing unchanged.
const placeholder = "%%NEWLINE%%"

var (
	breakTag    = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>|</div\s*>|</li\s*>|</h\d\s*>`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	breakSpaces = regexp.MustCompile(` *\n *`)
)

// TextWithBreaks extracts the text of an HTML fragment, converting <br>,
// paragraph and block endings to newlines. Plain text extraction collapses
// them, which loses the paragraph structure of announcement bodies.
func TextWithBreaks(fragment string) string {
	marked := breakTag.ReplaceAllStringFunc(fragment, func(tag string) string {
		return placeholder + tag
	})
	doc, err := Parse("<div>" + marked + "</div>")
	if err != nil {
		return ""
	}
	text := CleanText(doc.Root().RawText())
	text = strings.ReplaceAll(text, placeholder, "\n")
	text = breakSpaces.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n ")
}
