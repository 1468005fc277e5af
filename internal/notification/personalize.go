package notification

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Data keys with special handling during personalization.
const (
	KeyCertificateURL  = "certificateUrl"
	KeyCertificateHTML = "certificateHtml"
)

var markupTag = regexp.MustCompile(`<[^>]*>`)

// Render personalizes tmpl with data.
//
// Every {name} token whose name is a key of data is replaced by the
// stringified value, in subject and body alike. Tokens without a matching
// key stay in the output verbatim, except the derived {certificateHtml}
// which expands to a download link or to nothing. Substitution is a single
// left-to-right pass, so substituted values are never rescanned and {date}
// can never match inside {dateTime}.
func Render(tmpl Template, data Data) RenderedMessage {
	values := make(map[string]string, len(data)+1)
	for k, v := range data {
		values[k] = stringify(v)
	}
	// certificateHtml is derived, never left as a raw token.
	if raw, ok := data[KeyCertificateURL]; ok {
		values[KeyCertificateHTML] = certificateHTML(stringify(raw))
	} else if _, ok := values[KeyCertificateHTML]; !ok {
		values[KeyCertificateHTML] = ""
	}

	html := substitute(tmpl.HTML, values)
	return RenderedMessage{
		Subject: substitute(tmpl.Subject, values),
		HTML:    html,
		Text:    PlainText(html),
	}
}

// PlainText strips markup tags from html and trims surrounding whitespace.
// Entities are not decoded.
func PlainText(html string) string {
	return strings.TrimSpace(markupTag.ReplaceAllString(html, ""))
}

func certificateHTML(url string) string {
	if url == "" {
		return ""
	}
	return `<p style="color: #34495e; margin: 5px 0;"><strong>الشهادة:</strong> <a href="` + url + `">تحميل الشهادة</a></p>`
}

func substitute(s string, values map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open+1:], '}')
		if end < 0 {
			break
		}
		name := s[open+1 : open+1+end]
		v, ok := values[name]
		if !ok {
			// Keep the brace and resume right after it, so "{{name}}" still
			// resolves its inner token.
			b.WriteString(s[:open+1])
			s = s[open+1:]
			continue
		}
		b.WriteString(s[:open])
		b.WriteString(v)
		s = s[open+end+2:]
	}
	b.WriteString(s)
	return b.String()
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
