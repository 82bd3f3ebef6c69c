package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SergeiKhy/linkhub/internal/config"
)

// Verdict — результат проверки целевого URL внешним сервисом репутации
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictUnsafe
	// VerdictUnknown значит, что внешний сервис недоступен или не ответил
	// вовремя. Fail-open против fail-closed решает вызывающий, этот пакет
	// молча не решает никогда.
	VerdictUnknown
)

// SafetyChecker классифицирует целевой URL перед созданием/изменением
// ссылки. На редирект проверка никогда не влияет.
type SafetyChecker interface {
	Check(ctx context.Context, url string) Verdict
}

type safetyChecker struct {
	cfg    config.SafetyConfig
	client *http.Client
}

func NewSafetyChecker(cfg config.SafetyConfig) SafetyChecker {
	return &safetyChecker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Формат запроса/ответа Safe Browsing v4 threatMatches:find
type threatRequest struct {
	ThreatInfo threatInfo `json:"threatInfo"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type threatResponse struct {
	Matches []json.RawMessage `json:"matches"`
}

func (s *safetyChecker) Check(ctx context.Context, url string) Verdict {
	// Без настроенного оракула вердикт всегда неизвестен; политика
	// fail-open/closed применяется вызывающим
	if s.cfg.Endpoint == "" {
		return VerdictUnknown
	}

	payload := threatRequest{
		ThreatInfo: threatInfo{
			ThreatTypes:      []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE"},
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []threatEntry{{URL: url}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return VerdictUnknown
	}

	endpoint := s.cfg.Endpoint
	if s.cfg.APIKey != "" {
		endpoint = fmt.Sprintf("%s?key=%s", endpoint, s.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return VerdictUnknown
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return VerdictUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerdictUnknown
	}

	var parsed threatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return VerdictUnknown
	}

	if len(parsed.Matches) > 0 {
		return VerdictUnsafe
	}
	return VerdictSafe
}
