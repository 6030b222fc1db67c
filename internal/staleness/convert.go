package staleness

import "path/filepath"

// ConversionInputs is everything the conversion decision looks at
type ConversionInputs struct {
	Linked bool
	ELF    string
	NSO    string

	// Symbol listings consumed by the checker, when checking is configured
	CheckConfigured bool
	SymbolListings  []string
}

// NeedsConversion decides whether the NSO must be regenerated and says why
func (in *ConversionInputs) NeedsConversion() (bool, string) {
	if in.Linked {
		return true, "binary was relinked"
	}

	nsoTime, ok := Mtime(in.NSO)
	if !ok {
		return true, "converted binary missing"
	}

	if in.CheckConfigured {
		for _, listing := range in.SymbolListings {
			t, ok := Mtime(listing)
			if !ok || !UpToDate(t, nsoTime) {
				return true, "symbol listing " + filepath.Base(listing) + " changed"
			}
		}
	}

	elfTime, ok := Mtime(in.ELF)
	if !ok || !UpToDate(elfTime, nsoTime) {
		return true, "converted binary is older than binary"
	}

	return false, ""
}
