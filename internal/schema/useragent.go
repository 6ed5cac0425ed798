package schema

import "strings"

// Device classes derived from a user-agent string.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"

	unknownAgent = "Unknown"
)

type uaRule struct {
	needles []string
	value   string
}

// Rules are matched in order against the lower-cased user agent; the first
// rule with any matching needle wins.
var (
	deviceRules = []uaRule{
		{[]string{"ipad", "tablet", "kindle", "silk/"}, DeviceTablet},
		{[]string{"mobile", "iphone", "ipod", "android", "blackberry", "windows phone"}, DeviceMobile},
	}
	browserRules = []uaRule{
		{[]string{"edg/", "edge/", "edga/", "edgios/"}, "Edge"},
		{[]string{"opr/", "opera"}, "Opera"},
		{[]string{"samsungbrowser"}, "Samsung Internet"},
		{[]string{"chrome/", "crios/", "chromium"}, "Chrome"},
		{[]string{"firefox/", "fxios/"}, "Firefox"},
		{[]string{"safari/"}, "Safari"},
		{[]string{"msie", "trident/"}, "Internet Explorer"},
	}
	osRules = []uaRule{
		{[]string{"windows phone"}, "Windows Phone"},
		{[]string{"windows"}, "Windows"},
		{[]string{"iphone", "ipad", "ipod"}, "iOS"},
		{[]string{"mac os x", "macintosh"}, "macOS"},
		{[]string{"android"}, "Android"},
		{[]string{"cros "}, "Chrome OS"},
		{[]string{"linux"}, "Linux"},
	}
)

func matchUA(ua string, rules []uaRule, def string) string {
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(ua, n) {
				return r.value
			}
		}
	}
	return def
}

// ParseUserAgent derives device type, browser and OS from a raw user-agent
// string. An empty or unrecognised string yields desktop/Unknown/Unknown.
func ParseUserAgent(userAgent string) (device, browser, os string) {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return DeviceDesktop, unknownAgent, unknownAgent
	}
	return matchUA(ua, deviceRules, DeviceDesktop),
		matchUA(ua, browserRules, unknownAgent),
		matchUA(ua, osRules, unknownAgent)
}
