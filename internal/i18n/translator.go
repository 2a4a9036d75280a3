package i18n

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var supported = []language.Tag{language.Spanish, language.English}

// Translator resolves message keys for the supported languages. Unknown keys
// are returned unchanged.
type Translator struct {
	fallback language.Tag
	matcher  language.Matcher
}

func New(defaultLang string) *Translator {
	t := &Translator{matcher: language.NewMatcher(supported)}
	t.fallback = language.Spanish
	if defaultLang != "" {
		t.fallback = t.matchString(defaultLang)
	}
	return t
}

func (t *Translator) match(tags ...language.Tag) language.Tag {
	if len(tags) == 0 {
		return t.fallback
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.fallback
	}
	return supported[idx]
}

func (t *Translator) matchString(lang string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return t.fallback
	}
	return t.match(tag)
}

// Negotiate picks a supported language from an Accept-Language header.
func (t *Translator) Negotiate(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return t.fallback.String()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil {
		return t.fallback.String()
	}
	return t.match(tags...).String()
}

// Translate returns the message for key in lang ("es", "en", "es-CO", ...).
func (t *Translator) Translate(key, lang string) string {
	entry, ok := messages[key]
	if !ok {
		return key
	}
	if t.matchString(lang) == language.English {
		return entry[1]
	}
	return entry[0]
}

// FormatPrice renders amount with two decimals and the grouping of lang.
func (t *Translator) FormatPrice(amount decimal.Decimal, lang string) string {
	printer := message.NewPrinter(t.matchString(lang))
	return printer.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.Scale(2)))
}
