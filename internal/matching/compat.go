// Package matching holds the pure rules that decide which queued users may be paired.
package matching

const (
	// TagRandom is the topic tag that accepts any partner.
	TagRandom = "random"
	// LanguageMixed is the language wildcard.
	LanguageMixed = "mixed"
)

// VibeTags lists the topic tags a user may queue with.
var VibeTags = []string{"music", "tech", "jokes", "relationships", "travel", TagRandom}

// Languages lists the supported language preferences.
var Languages = []string{"kinyarwanda", "english", "french", LanguageMixed}

// Compatible reports whether two language preferences can share a session.
func Compatible(a, b string) bool {
	return a == LanguageMixed || b == LanguageMixed || a == b
}

// Preference is what a user asks for when joining the queue.
type Preference struct {
	Tag       string
	Language  string
	IsVisitor bool
}

// Compatible applies the language rule. Tags only order candidates, they never exclude one.
func (p Preference) Compatible(other Preference) bool {
	return Compatible(p.Language, other.Language)
}

// SearchTiers returns the tag filters to try in order. A nil entry matches any tag.
func SearchTiers(tag string) []*string {
	random := TagRandom
	if tag == "" || tag == TagRandom {
		return []*string{&random, nil}
	}
	exact := tag
	return []*string{&exact, &random, nil}
}

func IsVibeTag(tag string) bool {
	return contains(VibeTags, tag)
}

func IsLanguage(lang string) bool {
	return contains(Languages, lang)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
