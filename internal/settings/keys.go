// Package settings provides the portal's key-value settings and their environment fallback.
package settings

// Keys read by the guest authorization bridge.
const (
	KeyAPIType        = "unifi_api_type"
	KeyControllerURL  = "unifi_controller_url"
	KeyAPIKey         = "unifi_api_key"
	KeyUsername       = "unifi_username"
	KeyPassword       = "unifi_password"
	KeySite           = "unifi_site"
	KeyOpenNDSPrivKey = "opennds_private_key"
)

// Known lists every key the portal accepts, in display order.
var Known = []string{
	KeyAPIType,
	KeyControllerURL,
	KeyAPIKey,
	KeyUsername,
	KeyPassword,
	KeySite,
	KeyOpenNDSPrivKey,
}

var secretKeys = map[string]bool{
	KeyAPIKey:         true,
	KeyPassword:       true,
	KeyOpenNDSPrivKey: true,
}

// IsKnown reports whether key is a recognised setting.
func IsKnown(key string) bool {
	for _, k := range Known {
		if k == key {
			return true
		}
	}
	return false
}

// IsSecret reports whether the value of key must not be echoed back to clients.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// Mask hides all but the last four characters of a secret value.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
