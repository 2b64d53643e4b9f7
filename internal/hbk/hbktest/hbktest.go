// Package hbktest builds synthetic .hbk archives for tests.
package hbktest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// Page describes one help page to place into a fixture archive.
type Page struct {
	// Path inside the ZIP payload, e.g.
	// "objects/catalog128/ТаблицаЗначений12.html".
	Path string
	// Title is the page title, "Имя (Alias)" or "Владелец.Имя (O.A)".
	Title string

	Syntax      string
	Params      []string
	ReturnType  string
	Description string
	Example     string

	// Raw overrides the generated HTML body entirely when non-empty.
	Raw string
}

// HTML renders the page in the 1C help markup the parser understands.
func (p Page) HTML() string {
	if p.Raw != "" {
		return p.Raw
	}

	var b strings.Builder
	b.WriteString("<html><body>\n")
	fmt.Fprintf(&b, "<h1 class=\"V8SH_pagetitle\">%s</h1>\n", p.Title)
	if p.Syntax != "" {
		b.WriteString("<p class=\"V8SH_title\">Синтаксис:</p>\n")
		fmt.Fprintf(&b, "<p class=\"V8SH_syntax\">%s</p>\n", p.Syntax)
	}
	if len(p.Params) > 0 {
		b.WriteString("<p class=\"V8SH_title\">Параметры:</p>\n")
		for _, param := range p.Params {
			fmt.Fprintf(&b, "<div class=\"V8SH_parameter\">%s</div>\n", param)
		}
	}
	if p.ReturnType != "" {
		b.WriteString("<p class=\"V8SH_title\">Возвращаемое значение:</p>\n")
		fmt.Fprintf(&b, "<p>Тип: %s.</p>\n", p.ReturnType)
	}
	if p.Description != "" {
		b.WriteString("<p class=\"V8SH_title\">Описание:</p>\n")
		fmt.Fprintf(&b, "<p>%s</p>\n", p.Description)
	}
	if p.Example != "" {
		b.WriteString("<p class=\"V8SH_title\">Пример:</p>\n")
		fmt.Fprintf(&b, "<pre>%s</pre>\n", p.Example)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

// Archive builds a complete .hbk byte stream: a vendor-style header,
// the ZIP payload with the given pages, and trailer bytes after the
// ZIP, mirroring the container layout of real archives.
func Archive(pages ...Page) []byte {
	return ArchiveWithExtras(pages, map[string]string{
		"objects/__categories__": "version 8.3.24 objects section",
	})
}

// ArchiveWithExtras builds an archive with additional non-page files
// (metadata, templates) placed alongside the pages.
func ArchiveWithExtras(pages []Page, extras map[string]string) []byte {
	var payload bytes.Buffer
	zw := zip.NewWriter(&payload)

	for name, content := range extras {
		w, _ := zw.Create(name)
		_, _ = w.Write([]byte(content))
	}
	for _, p := range pages {
		w, _ := zw.Create(p.Path)
		_, _ = w.Write([]byte(p.HTML()))
	}
	_ = zw.Close()

	var out bytes.Buffer
	out.Write([]byte{0x1C, 0x48, 0x42, 0x4B, 0x00, 0x01, 0x00, 0x00}) // vendor header
	out.Write(payload.Bytes())
	out.Write([]byte("TRAILER-METADATA"))
	return out.Bytes()
}

// GlobalFunction returns a page for a global function.
func GlobalFunction(name, alias, description string) Page {
	return Page{
		Path:        fmt.Sprintf("Global context/methods/catalog100/%s1.html", alias),
		Title:       fmt.Sprintf("%s (%s)", name, alias),
		Syntax:      fmt.Sprintf("%s(<Значение>)", name),
		Params:      []string{"<Значение> (обязательный) Тип: Строка."},
		ReturnType:  "Число",
		Description: description,
		Example:     fmt.Sprintf("Результат = %s(Значение);", name),
	}
}

// ObjectType returns a page for a top-level object type.
func ObjectType(name, alias, description string) Page {
	return Page{
		Path:        fmt.Sprintf("objects/catalog200/%s1.html", alias),
		Title:       fmt.Sprintf("%s (%s)", name, alias),
		Description: description,
	}
}

// Method returns a page for a method of an object type.
func Method(ownerName, ownerAlias, name, alias, description string) Page {
	return Page{
		Path:        fmt.Sprintf("objects/catalog200/%s1/methods/%s2.html", ownerAlias, alias),
		Title:       fmt.Sprintf("%s.%s (%s.%s)", ownerName, name, ownerAlias, alias),
		Syntax:      fmt.Sprintf("%s(<Параметр>)", name),
		Params:      []string{"<Параметр> (необязательный) Тип: Произвольный."},
		ReturnType:  "Произвольный",
		Description: description,
	}
}

// Property returns a page for a property of an object type.
func Property(ownerName, ownerAlias, name, alias, description string) Page {
	return Page{
		Path:        fmt.Sprintf("objects/catalog200/%s1/properties/%s3.html", ownerAlias, alias),
		Title:       fmt.Sprintf("%s.%s (%s.%s)", ownerName, name, ownerAlias, alias),
		ReturnType:  "Строка",
		Description: description,
	}
}

// Event returns a page for an event of an object type.
func Event(ownerName, ownerAlias, name, alias, description string) Page {
	return Page{
		Path:        fmt.Sprintf("objects/catalog200/%s1/events/%s4.html", ownerAlias, alias),
		Title:       fmt.Sprintf("%s.%s (%s.%s)", ownerName, name, ownerAlias, alias),
		Description: description,
	}
}
