package tesauro

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// normalizeSpace collapses whitespace runs and trims, like XPath normalize-space().
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// ParseCard reads the fields of a result card from its outer HTML.
// Missing labels yield empty values.
func ParseCard(html string) (CardFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CardFields{}, fmt.Errorf("parsing card html: %w", err)
	}

	return CardFields{
		Title:         normalizeSpace(doc.Find(cardTitleSelector).First().Text()),
		ProcessNumber: labelledValue(doc.Selection, labelProcessNumber),
		Date:          labelledValue(doc.Selection, labelDate),
		Theme:         labelledValue(doc.Selection, labelTheme),
	}, nil
}

func labelledValue(root *goquery.Selection, label string) string {
	want := normalizeSpace(label)
	title := root.Find(cardLabelSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return normalizeSpace(s.Text()) == want
	}).First()
	if title.Length() == 0 {
		return ""
	}
	return normalizeSpace(title.NextAllFiltered(cardValueSelector).First().Text())
}

// ParseFilingNumber reads the filing number from the detail panel's outer
// HTML. It returns "" when the label is absent.
func ParseFilingNumber(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing detail panel html: %w", err)
	}

	want := normalizeSpace(labelFilingNumber)
	label := doc.Find(detailLabelSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(normalizeSpace(s.Text()), want)
	}).First()

	return normalizeSpace(label.ChildrenFiltered(detailValueSelector).First().Text()), nil
}

// AnalysisContent picks the main content of an analysis page for the
// Markdown snapshot, falling back to the whole body.
func AnalysisContent(html string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing analysis html: %w", err)
	}
	doc.Find("script, style, noscript, " + documentActionsSelector).Remove()

	for _, sel := range []string{"main", "article", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s, nil
		}
	}
	return doc.Selection, nil
}
