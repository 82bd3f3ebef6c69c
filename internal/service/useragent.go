package service

import (
	"strings"
)

// ClassifyUserAgent сводит строку User-Agent к семейству браузера и
// платформы. Чистая функция над таблицей сигнатур: порядок важен
// (например, каждый Chrome содержит "Safari", а Edge содержит "Chrome").
func ClassifyUserAgent(userAgent string) (browser, platform string) {
	return classifyBrowser(userAgent), classifyPlatform(userAgent)
}

type signature struct {
	token string
	label string
}

// Порядок сигнатур — от более специфичных к менее
var browserSignatures = []signature{
	{"Edg", "Edge"},
	{"OPR", "Opera"},
	{"Opera", "Opera"},
	{"SamsungBrowser", "Samsung Internet"},
	{"YaBrowser", "Yandex"},
	{"Firefox", "Firefox"},
	{"MSIE", "Internet Explorer"},
	{"Trident", "Internet Explorer"},
	{"Chrome", "Chrome"},
	{"CriOS", "Chrome"},
	{"FxiOS", "Firefox"},
	{"Safari", "Safari"},
}

var platformSignatures = []signature{
	{"Windows Phone", "Windows Phone"},
	{"Windows", "Windows"},
	{"Android", "Android"},
	{"iPhone", "iOS"},
	{"iPad", "iOS"},
	{"iPod", "iOS"},
	{"Mac OS X", "macOS"},
	{"Macintosh", "macOS"},
	{"CrOS", "ChromeOS"},
	{"Linux", "Linux"},
}

func classifyBrowser(userAgent string) string {
	return classify(userAgent, browserSignatures)
}

func classifyPlatform(userAgent string) string {
	return classify(userAgent, platformSignatures)
}

func classify(userAgent string, signatures []signature) string {
	if userAgent == "" {
		return "unknown"
	}
	for _, sig := range signatures {
		if strings.Contains(userAgent, sig.token) {
			return sig.label
		}
	}
	return "unknown"
}
