package model

import "strings"

// Language is one entry of the supported language catalog.
type Language struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ID          int    `json:"id"`
}

var languages = []Language{
	{Name: "javascript", DisplayName: "JavaScript", ID: 63},
	{Name: "python", DisplayName: "Python", ID: 71},
	{Name: "java", DisplayName: "Java", ID: 62},
	{Name: "cpp", DisplayName: "C++", ID: 54},
	{Name: "c", DisplayName: "C", ID: 50},
	{Name: "typescript", DisplayName: "TypeScript", ID: 74},
	{Name: "ruby", DisplayName: "Ruby", ID: 72},
	{Name: "go", DisplayName: "Go", ID: 60},
}

var (
	languagesByID   = make(map[int]Language, len(languages))
	languagesByName = make(map[string]Language, len(languages)*2)
)

func init() {
	for _, l := range languages {
		languagesByID[l.ID] = l
		languagesByName[l.Name] = l
		languagesByName[strings.ToLower(l.DisplayName)] = l
	}
	languagesByName["c++"] = languagesByID[54]
	languagesByName["golang"] = languagesByID[60]
	languagesByName["js"] = languagesByID[63]
	languagesByName["ts"] = languagesByID[74]
}

// Languages returns the catalog in a stable order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LanguageByName looks a language up by name, display name or common alias, ignoring case.
func LanguageByName(name string) (Language, bool) {
	l, ok := languagesByName[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// LanguageByID looks a language up by execution-service id.
func LanguageByID(id int) (Language, bool) {
	l, ok := languagesByID[id]
	return l, ok
}

// IsSupportedLanguage reports whether id is in the catalog.
func IsSupportedLanguage(id int) bool {
	_, ok := languagesByID[id]
	return ok
}
