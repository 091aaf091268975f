package portal

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
)

// Form is an HTML form extracted from a page.
type Form struct {
	Action *url.URL
	Method string
	// Every named input, in document order.
	Fields []Field
}

type Field struct {
	Name   string
	Value  string
	Type   string
	Hidden bool
}

// Values returns every named field.
func (f *Form) Values() url.Values {
	v := url.Values{}
	for _, field := range f.Fields {
		v.Add(field.Name, field.Value)
	}
	return v
}

// HiddenValues returns the hidden fields only.
func (f *Form) HiddenValues() url.Values {
	v := url.Values{}
	for _, field := range f.Fields {
		if field.Hidden {
			v.Add(field.Name, field.Value)
		}
	}
	return v
}

func (f *Form) Has(name string) bool {
	for _, field := range f.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

func (f *Form) Get(name string) string {
	for _, field := range f.Fields {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

// Document parses the page body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrParse, err, "failed to parse html from %s", apperr.RedactURL(p.URL))
	}
	return doc, nil
}

// FindForm returns the first form matching selector that has an action.
// The action is resolved against base.
func FindForm(doc *goquery.Document, selector string, base *url.URL) (*Form, bool) {
	var form *Form

	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		action, ok := sel.Attr("action")
		action = strings.TrimSpace(action)
		if !ok || action == "" {
			return true
		}

		actionURL, err := base.Parse(action)
		if err != nil {
			return true
		}

		form = &Form{
			Action: actionURL,
			Method: strings.ToUpper(sel.AttrOr("method", "GET")),
			Fields: formFields(sel),
		}
		return false
	})

	return form, form != nil
}

func formFields(sel *goquery.Selection) []Field {
	var fields []Field
	sel.Find("input[name], textarea[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		if name == "" {
			return
		}

		inputType := strings.ToLower(in.AttrOr("type", "text"))
		if inputType == "submit" || inputType == "button" || inputType == "image" {
			return
		}
		if (inputType == "checkbox" || inputType == "radio") && !in.Is("[checked]") {
			return
		}

		value := in.AttrOr("value", "")
		if goquery.NodeName(in) == "textarea" {
			value = in.Text()
		}

		fields = append(fields, Field{
			Name:   name,
			Value:  value,
			Type:   inputType,
			Hidden: inputType == "hidden",
		})
	})
	return fields
}

// FirstText returns the trimmed text of the first non-empty match.
func FirstText(doc *goquery.Document, selector string) (string, bool) {
	var text string
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text = strings.TrimSpace(sel.Text())
		return text == ""
	})
	return text, text != ""
}

// Exists reports whether selector matches anything in doc.
func Exists(doc *goquery.Document, selector string) bool {
	return doc.Find(selector).Length() > 0
}
