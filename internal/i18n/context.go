package i18n

import "context"

type contextKey string

const (
	ctxLanguage   contextKey = "language"
	ctxTranslator contextKey = "translator"
)

// WithLocale attaches the negotiated language and the translator to ctx.
func WithLocale(ctx context.Context, tr *Translator, lang string) context.Context {
	ctx = context.WithValue(ctx, ctxTranslator, tr)
	return context.WithValue(ctx, ctxLanguage, lang)
}

// LocaleFromContext returns the translator and language set by WithLocale.
func LocaleFromContext(ctx context.Context) (*Translator, string) {
	if ctx == nil {
		return nil, ""
	}
	tr, _ := ctx.Value(ctxTranslator).(*Translator)
	lang, _ := ctx.Value(ctxLanguage).(string)
	return tr, lang
}
