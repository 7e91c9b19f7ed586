package station

import "strings"

// decodeScannedCode turns the raw scanner string read from the code
// registers into a barcode. The scanner stores characters pairwise
// swapped within each register, so the first eight characters are
// re-swapped, then NULs and line endings are stripped. An empty or
// unreadable code yields "N/A".
func decodeScannedCode(raw string) string {
	code := raw
	if len(code) > 8 {
		code = code[:8]
	}

	swapped := make([]byte, 0, len(code))
	for i := 0; i+1 < len(code); i += 2 {
		swapped = append(swapped, code[i+1], code[i])
	}
	if len(code)%2 == 1 {
		swapped = append(swapped, code[len(code)-1])
	}

	cleaned := strings.NewReplacer("\x00", "", "\r", "", "\n", "").Replace(string(swapped))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "N/A"
	}
	return cleaned
}
