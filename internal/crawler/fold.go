package crawler

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letterFold maps letters that have a fixed plain-letter substitute. It runs
// before the generic mark stripping because none of the non-Turkish letters
// below, nor dotless i, decompose under NFD.
var letterFold = strings.NewReplacer(
	"ı", "i", "İ", "I",
	"ö", "o", "Ö", "O",
	"ü", "u", "Ü", "U",
	"ğ", "g", "Ğ", "G",
	"ş", "s", "Ş", "S",
	"ç", "c", "Ç", "C",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"ħ", "h", "Ħ", "H",
	"þ", "th", "Þ", "Th",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ß", "ss", "ẞ", "SS",
)

// FoldUnit returns the folded form of a search term: the fixed substitutions
// above, then combining marks removed. Letters outside Latin scripts are left
// as they are.
func FoldUnit(unit SearchUnit) SearchUnit {
	s := letterFold.Replace(string(unit))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return SearchUnit(s)
	}
	return SearchUnit(folded)
}
