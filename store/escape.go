package store

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"\u00a0", "&nbsp;",
	"à", "&agrave;", "á", "&aacute;", "â", "&acirc;", "ä", "&auml;",
	"À", "&Agrave;", "Á", "&Aacute;", "Â", "&Acirc;", "Ä", "&Auml;",
	"è", "&egrave;", "é", "&eacute;", "ê", "&ecirc;", "ë", "&euml;",
	"È", "&Egrave;", "É", "&Eacute;", "Ê", "&Ecirc;", "Ë", "&Euml;",
	"ì", "&igrave;", "í", "&iacute;", "î", "&icirc;", "ï", "&iuml;",
	"ò", "&ograve;", "ó", "&oacute;", "ô", "&ocirc;", "ö", "&ouml;",
	"Ò", "&Ograve;", "Ó", "&Oacute;", "Ô", "&Ocirc;", "Ö", "&Ouml;",
	"ù", "&ugrave;", "ú", "&uacute;", "û", "&ucirc;", "ü", "&uuml;",
	"Ù", "&Ugrave;", "Ú", "&Uacute;", "Û", "&Ucirc;", "Ü", "&Uuml;",
	"ç", "&ccedil;", "Ç", "&Ccedil;", "ñ", "&ntilde;", "Ñ", "&Ntilde;",
	"ß", "&szlig;", "ø", "&oslash;", "Ø", "&Oslash;", "å", "&aring;", "Å", "&Aring;",
	"©", "&copy;", "®", "&reg;", "°", "&deg;", "±", "&plusmn;", "×", "&times;",
	"÷", "&divide;", "µ", "&micro;", "¶", "&para;", "§", "&sect;", "·", "&middot;",
	"€", "&euro;", "£", "&pound;", "¥", "&yen;", "¢", "&cent;",
	"«", "&laquo;", "»", "&raquo;", "¬", "&not;", "²", "&sup2;", "³", "&sup3;",
	"¼", "&frac14;", "½", "&frac12;", "¾", "&frac34;",
)

// Escape makes text safe to embed in the rendered html, accented letters and a few symbols are
// turned into their named entities. Input is NFC normalized first so decomposed accents match.
func Escape(s string) string {
	return escaper.Replace(norm.NFC.String(s))
}
