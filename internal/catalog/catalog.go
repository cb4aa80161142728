package catalog

import (
	"errors"
	"strings"
)

var ErrUnknownTool = errors.New("unknown tool")

type Category string

const (
	CategoryDNS       Category = "dns"
	CategoryEmail     Category = "email"
	CategoryNetwork   Category = "network"
	CategoryBlacklist Category = "blacklist"
)

type InputType string

const (
	InputDomain    InputType = "domain"
	InputEmail     InputType = "email"
	InputIP        InputType = "ip"
	InputHost      InputType = "host"
	InputEmailList InputType = "email-list"
	InputRawText   InputType = "raw-text"
)

// ToolDescriptor is the static metadata for one diagnostic tool.
// DailyFreeLimit == 0 means no limit is tracked for the free tier.
type ToolDescriptor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	InputType         InputType `json:"input_type"`
	IsFree            bool      `json:"is_free"`
	Category          Category  `json:"category"`
	DailyFreeLimit    int       `json:"daily_free_limit"`
	RequiresChallenge bool      `json:"requires_challenge"`
}

// tools is the catalog in display order. The orchestrator reads it and never
// mutates it.
var tools = []ToolDescriptor{
	{ID: "dns-lookup", Name: "DNS Lookup", InputType: InputDomain, IsFree: true, Category: CategoryDNS},
	{ID: "mx-lookup", Name: "MX Lookup", InputType: InputDomain, IsFree: true, Category: CategoryDNS},
	{ID: "spf-check", Name: "SPF Record Check", InputType: InputDomain, IsFree: true, Category: CategoryEmail},
	{ID: "dkim-check", Name: "DKIM Record Check", InputType: InputDomain, IsFree: true, Category: CategoryEmail},
	{ID: "dmarc-check", Name: "DMARC Record Check", InputType: InputDomain, IsFree: true, Category: CategoryEmail},
	{ID: "blacklist-check", Name: "Blacklist Check", InputType: InputIP, IsFree: true, Category: CategoryBlacklist, DailyFreeLimit: 10, RequiresChallenge: true},
	{ID: "whois", Name: "WHOIS Lookup", InputType: InputDomain, IsFree: true, Category: CategoryNetwork},
	{ID: "ping", Name: "Ping", InputType: InputHost, IsFree: true, Category: CategoryNetwork},
	{ID: "smtp-test", Name: "SMTP Server Test", InputType: InputHost, IsFree: true, Category: CategoryEmail, DailyFreeLimit: 5, RequiresChallenge: true},
	{ID: "email-validate", Name: "Email Validation", InputType: InputEmail, IsFree: true, Category: CategoryEmail, DailyFreeLimit: 25, RequiresChallenge: true},
	{ID: "email-validate-bulk", Name: "Bulk Email Validation", InputType: InputEmailList, IsFree: false, Category: CategoryEmail},
	{ID: "header-analyzer", Name: "Email Header Analyzer", InputType: InputRawText, IsFree: false, Category: CategoryEmail},
}

var byID = func() map[string]ToolDescriptor {
	m := make(map[string]ToolDescriptor, len(tools))
	for _, t := range tools {
		m[t.ID] = t
	}
	return m
}()

// All returns the catalog in display order.
func All() []ToolDescriptor {
	out := make([]ToolDescriptor, len(tools))
	copy(out, tools)
	return out
}

func Lookup(id string) (ToolDescriptor, error) {
	t, ok := byID[strings.TrimSpace(id)]
	if !ok {
		return ToolDescriptor{}, ErrUnknownTool
	}
	return t, nil
}
