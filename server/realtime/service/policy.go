package service

import "strings"

// ContentScanner checks outbound text against the content policy. A match
// triggers an auto-report but never blocks delivery.
type ContentScanner interface {
	Scan(text string) (matched string, ok bool)
}

type KeywordScanner struct {
	keywords []string
}

func NewKeywordScanner(keywords []string) *KeywordScanner {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	return &KeywordScanner{keywords: cleaned}
}

func (s *KeywordScanner) Scan(text string) (string, bool) {
	if text == "" || len(s.keywords) == 0 {
		return "", false
	}
	lowered := strings.ToLower(text)
	for _, kw := range s.keywords {
		if strings.Contains(lowered, kw) {
			return kw, true
		}
	}
	return "", false
}
