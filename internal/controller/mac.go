package controller

import (
	"fmt"
	"strings"
)

// UpperMAC formats a MAC address as AA:BB:CC:DD:EE:FF.
func UpperMAC(mac string) string {
	return strings.ToUpper(colonMAC(mac))
}

// LowerMAC formats a MAC address as aa:bb:cc:dd:ee:ff.
func LowerMAC(mac string) string {
	return strings.ToLower(colonMAC(mac))
}

// colonMAC rewrites a 12-digit address with any of the common separators into
// colon-delimited pairs. Anything else only has its hyphens swapped for colons;
// the controller decides whether it is acceptable.
func colonMAC(mac string) string {
	mac = strings.TrimSpace(mac)

	digits := strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(digits) == 12 && isHex(digits) {
		return fmt.Sprintf("%s:%s:%s:%s:%s:%s",
			digits[0:2], digits[2:4], digits[4:6],
			digits[6:8], digits[8:10], digits[10:12])
	}

	return strings.ReplaceAll(mac, "-", ":")
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
