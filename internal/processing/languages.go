package processing

import "strings"

var languageNames = map[string]string{
	"ja":    "Japanese",
	"en":    "English",
	"zh-cn": "Simplified Chinese",
	"zh-tw": "Traditional Chinese",
	"ko":    "Korean",
	"ru":    "Russian",
	"fr":    "French",
}

// LanguageName returns the English name of a language code, or the code
// itself when it is not known.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
