package i18n

// GetLanguagesList enumerates the shipped catalogs. English is implicit, it
// is the key language.
func GetLanguagesList() []string {
	return []string{"en", "id"}
}
