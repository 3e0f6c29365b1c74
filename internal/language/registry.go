// Package language holds the static catalog of translation target languages.
package language

import "errors"

// ErrNotFound is returned when a language code is not in the catalog.
var ErrNotFound = errors.New("language not found")

// Language describes one supported target language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// catalog order is the order List returns and the order the client UI shows.
var catalog = []Language{
	{Code: "en", Name: "English", Flag: "🇺🇸"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "it", Name: "Italian", Flag: "🇮🇹"},
	{Code: "pt", Name: "Portuguese", Flag: "🇵🇹"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
	{Code: "ko", Name: "Korean", Flag: "🇰🇷"},
	{Code: "zh", Name: "Chinese", Flag: "🇨🇳"},
	{Code: "vi", Name: "Vietnamese", Flag: "🇻🇳"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(catalog))
	for _, l := range catalog {
		m[l.Code] = l
	}
	return m
}()

// List returns all supported languages in catalog order.
func List() []Language {
	out := make([]Language, len(catalog))
	copy(out, catalog)
	return out
}

// Resolve looks up a language by code.
func Resolve(code string) (Language, error) {
	l, ok := byCode[code]
	if !ok {
		return Language{}, ErrNotFound
	}
	return l, nil
}
