package barcode

import "golang.org/x/text/unicode/norm"

type symbolKey struct {
	symbology Format
	payload   string
}

// Dedup drops every symbol whose (symbology, payload) pair was already seen
// earlier in the slice. Payloads are compared in Unicode NFC form. The first
// occurrence wins and the relative order of the kept symbols is unchanged.
func Dedup(symbols []Symbol) []Symbol {
	out := make([]Symbol, 0, len(symbols))
	seen := make(map[symbolKey]struct{}, len(symbols))
	for _, s := range symbols {
		k := symbolKey{symbology: s.Symbology, payload: norm.NFC.String(s.Payload)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
