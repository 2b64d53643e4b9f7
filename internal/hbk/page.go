package hbk

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
)

// page holds the fields extracted from one help page. Member pages
// carry a dot-qualified title ("Owner.Name"); object and global pages
// a bare one.
type page struct {
	Name       string
	Alias      string
	OwnerName  string
	OwnerAlias string

	Signature   string
	Parameters  []Parameter
	ReturnType  string
	Description string
	Example     string
}

// Section rubric titles as they appear on 1C help pages.
const (
	rubricSyntax      = "Синтаксис"
	rubricParameters  = "Параметры"
	rubricReturnValue = "Возвращаемое значение"
	rubricDescription = "Описание"
	rubricExample     = "Пример"
)

// parsePage extracts a page from raw HTML bytes. Pages are encoded in
// UTF-8 or windows-1251 depending on platform version.
func parsePage(raw []byte) (*page, error) {
	html, err := decodePage(raw)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("unparsable HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1.V8SH_pagetitle").First().Text())
	if title == "" {
		return nil, fmt.Errorf("page has no title element")
	}

	p := &page{}
	if err := p.parseTitle(title); err != nil {
		return nil, err
	}

	// Walk the rubric headers; each owns the siblings up to the next
	// header.
	doc.Find(".V8SH_title").Each(func(_ int, sel *goquery.Selection) {
		rubric := strings.TrimSuffix(strings.TrimSpace(sel.Text()), ":")
		body := sectionText(sel)

		switch rubric {
		case rubricSyntax:
			p.Signature = body
		case rubricParameters:
			p.Parameters = parseParameterList(sel)
		case rubricReturnValue:
			p.ReturnType = parseTypeRef(body)
		case rubricDescription:
			p.Description = body
		case rubricExample:
			p.Example = body
		}
	})

	return p, nil
}

// parseTitle splits "Имя (Alias)" or "Владелец.Имя (Owner.Alias)".
func (p *page) parseTitle(title string) error {
	ru := title
	var en string
	if open := strings.LastIndex(title, "("); open > 0 && strings.HasSuffix(title, ")") {
		ru = strings.TrimSpace(title[:open])
		en = strings.TrimSpace(title[open+1 : len(title)-1])
	}
	if ru == "" {
		return fmt.Errorf("empty page title %q", title)
	}

	if owner, name, ok := strings.Cut(ru, "."); ok {
		p.OwnerName = strings.TrimSpace(owner)
		p.Name = strings.TrimSpace(name)
	} else {
		p.Name = ru
	}
	if p.Name == "" {
		return fmt.Errorf("malformed page title %q", title)
	}

	if en != "" {
		if ownerAlias, alias, ok := strings.Cut(en, "."); ok && p.OwnerName != "" {
			p.OwnerAlias = strings.TrimSpace(ownerAlias)
			p.Alias = strings.TrimSpace(alias)
		} else {
			p.Alias = en
		}
	}
	return nil
}

// sectionText collects the text of sibling elements between a rubric
// header and the next one.
func sectionText(header *goquery.Selection) string {
	var parts []string
	for sel := header.Next(); sel.Length() > 0; sel = sel.Next() {
		if sel.HasClass("V8SH_title") {
			break
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseParameterList reads .V8SH_parameter items following the
// Параметры header: "<Имя> (необязательный) Тип: Строка."
func parseParameterList(header *goquery.Selection) []Parameter {
	var params []Parameter
	for sel := header.Next(); sel.Length() > 0; sel = sel.Next() {
		if sel.HasClass("V8SH_title") {
			break
		}
		if !sel.HasClass("V8SH_parameter") {
			continue
		}

		text := strings.TrimSpace(sel.Text())
		if text == "" {
			continue
		}

		param := Parameter{Optional: strings.Contains(text, "необязательный")}
		if open := strings.Index(text, "<"); open >= 0 {
			if close := strings.Index(text[open:], ">"); close > 0 {
				param.Name = text[open+1 : open+close]
			}
		}
		if param.Name == "" {
			// Parameter without the angle-bracket convention; take the
			// first word.
			param.Name = strings.Fields(text)[0]
		}
		param.Type = parseTypeRef(text)
		params = append(params, param)
	}
	return params
}

// parseTypeRef extracts the type name after a "Тип:" marker.
func parseTypeRef(text string) string {
	_, after, ok := strings.Cut(text, "Тип:")
	if !ok {
		return ""
	}
	after = strings.TrimSpace(after)
	if end := strings.IndexAny(after, ".\n;"); end >= 0 {
		after = after[:end]
	}
	return strings.TrimSpace(after)
}

// decodePage converts raw page bytes to a UTF-8 string, falling back
// to windows-1251 for pages from older platform builds.
func decodePage(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("undecodable page encoding: %w", err)
	}
	return string(decoded), nil
}
