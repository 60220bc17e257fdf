package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// curatedNames takes priority over anything a peer publishes about itself.
var curatedNames = map[string]string{
	"tm-alex-chen":       "Alex Chen",
	"tm-amara-okafor":    "Amara Okafor",
	"tm-kofi-asante":     "Kofi Asante",
	"tm-zara-mwangi":     "Zara Mwangi",
	"tm-fatima-alrashid": "Fatima Al-Rashid",
	"tm-kwame-nkomo":     "Kwame Nkomo",
	"tm-aisha-diallo":    "Aisha Diallo",
	"tm-boma-nwachukwu":  "Boma Nwachukwu",
	"tm-sekai-mandela":   "Sekai Mandela",
	"tm-omar-hassan":     "Omar Hassan",
	"tm-sam-rivera":      "Sam Rivera",
	"tm-jordan-kim":      "Jordan Kim",
	"tm-maya-patel":      "Maya Patel",
	"tm-riley-santos":    "Riley Santos",
	"tm-casey-wright":    "Casey Wright",
}

var idPrefixRe = regexp.MustCompile(`^(tm-|user-|0\.0\.)`)
var idSeparatorRe = regexp.MustCompile(`[-_]+`)

// SynthesizeDisplayName derives a readable name from the identifier alone: "tm-jane-doe" becomes
// "Jane Doe", "user-bob" becomes "Bob".
func SynthesizeDisplayName(peerId string) string {
	parts := make([]string, 0, 2)
	for _, part := range idSeparatorRe.Split(idPrefixRe.ReplaceAllString(peerId, ""), -1) {
		if len(part) > 0 {
			parts = append(parts, part)
		}
	}
	switch {
	case len(parts) >= 2:
		return capitalize(parts[0]) + " " + capitalize(parts[1])
	case len(parts) == 1:
		return capitalize(parts[0])
	}
	suffix := peerId
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "User " + suffix
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func curatedName(peerId string) (string, bool) {
	name, found := curatedNames[strings.TrimSpace(peerId)]
	return name, found
}
