// Package language holds the closed set of language presets that decide which
// detected languages are accepted into the corpus and how their text is tagged.
package language

import (
	"errors"
	"fmt"
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnsupportedLanguage is returned when a detected language is outside the active preset
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Preset names a fixed language selection
type Preset string

const (
	PresetCJE Preset = "CJE"
	PresetCJ  Preset = "CJ"
	PresetC   Preset = "C"
)

// Token pairs an ISO 639-1 code with the tag wrapped around its transcripts
type Token struct {
	Code string
	Tag  string
}

var presets = map[Preset][]Token{
	PresetCJE: {{"zh", "[ZH]"}, {"ja", "[JA]"}, {"en", "[EN]"}},
	PresetCJ:  {{"zh", "[ZH]"}, {"ja", "[JA]"}},
	PresetC:   {{"zh", "[ZH]"}},
}

// Presets lists the known preset names in a stable order
func Presets() []Preset {
	return []Preset{PresetCJE, PresetCJ, PresetC}
}

// TokenMap is the immutable code → tag mapping for one run
type TokenMap struct {
	preset Preset
	tokens []Token
	byCode map[string]string
}

// ParsePreset resolves a preset name (case-insensitive) into its token map
func ParsePreset(name string) (*TokenMap, error) {
	p := Preset(strings.ToUpper(strings.TrimSpace(name)))
	tokens, ok := presets[p]
	if !ok {
		return nil, fmt.Errorf("unknown language preset %q (want one of %v)", name, Presets())
	}

	byCode := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		byCode[tok.Code] = tok.Tag
	}
	return &TokenMap{
		preset: p,
		tokens: append([]Token(nil), tokens...),
		byCode: byCode,
	}, nil
}

// Preset returns the preset the map was built from
func (m *TokenMap) Preset() Preset {
	return m.preset
}

// Tokens returns the ordered (code, tag) pairs
func (m *TokenMap) Tokens() []Token {
	return append([]Token(nil), m.tokens...)
}

// Supports reports whether code is part of the map
func (m *TokenMap) Supports(code string) bool {
	_, ok := m.byCode[normalize(code)]
	return ok
}

// Tag returns the tag for code, or ErrUnsupportedLanguage
func (m *TokenMap) Tag(code string) (string, error) {
	tag, ok := m.byCode[normalize(code)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, DisplayName(code))
	}
	return tag, nil
}

// Wrap surrounds text with the tag for code. With tagging disabled the text is returned bare.
func (m *TokenMap) Wrap(code, text string, tagging bool) (string, error) {
	tag, err := m.Tag(code)
	if err != nil {
		return "", err
	}
	if !tagging {
		return text, nil
	}
	return tag + text + tag, nil
}

// DisplayName returns the English name for a language code, falling back to the code itself
func DisplayName(code string) string {
	code = normalize(code)
	if code == "" {
		return "unknown"
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return code
	}
	if name := display.Tags(xlang.English).Name(tag); name != "" {
		return name
	}
	return code
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
