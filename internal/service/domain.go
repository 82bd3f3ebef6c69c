package service

import (
	"regexp"
	"strings"
)

var secondLevelDomain = regexp.MustCompile(`(?i)([a-z0-9-]+\.[a-z0-9-]+)$`)

// ExtractDomain откусывает протокол, путь и поддомены, оставляя домен
// второго уровня: https://memes.example.edu/a?b=1 -> example.edu.
// Для пустого реферера возвращает пустую строку.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}

	if m := secondLevelDomain.FindString(host); m != "" {
		return strings.ToLower(m)
	}
	return strings.ToLower(host)
}
