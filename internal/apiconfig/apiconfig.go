// Package apiconfig manages third-party provider keys held by the backend.
package apiconfig

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joescharf/arq/internal/backend"
	"github.com/joescharf/arq/internal/notify"
)

// Provider describes a third-party API the backend can use.
type Provider struct {
	Name     string
	Label    string
	EnvVar   string
	Critical bool
}

// Providers is the fixed provider table, in display order.
var Providers = []Provider{
	{Name: "gemini", Label: "Google Gemini", EnvVar: "GEMINI_API_KEY", Critical: true},
	{Name: "openai", Label: "OpenAI GPT", EnvVar: "OPENAI_API_KEY", Critical: true},
	{Name: "groq", Label: "Groq Llama", EnvVar: "GROQ_API_KEY"},
	{Name: "exa", Label: "Exa Neural Search", EnvVar: "EXA_API_KEY", Critical: true},
	{Name: "jina", Label: "Jina Reader", EnvVar: "JINA_API_KEY", Critical: true},
	{Name: "youtube", Label: "YouTube Data API", EnvVar: "YOUTUBE_API_KEY"},
	{Name: "twitter", Label: "Twitter API", EnvVar: "TWITTER_BEARER_TOKEN"},
	{Name: "google_search", Label: "Google Custom Search", EnvVar: "GOOGLE_SEARCH_KEY"},
	{Name: "google_cse", Label: "Google CSE ID", EnvVar: "GOOGLE_CSE_ID"},
}

// Lookup finds a provider by name.
func Lookup(name string) (Provider, bool) {
	for _, p := range Providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}

// Status is a provider with its configured flag.
type Status struct {
	Provider
	Configured bool
}

// TestResult is one provider's outcome from a live key check.
type TestResult struct {
	Provider
	Working bool
	Error   string
}

// ValidationError rejects a submission before it reaches the backend.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

// Backend is the subset of backend.Client used by the panel.
type Backend interface {
	GetAPIConfig(ctx context.Context) (map[string]bool, error)
	SaveAPIConfig(ctx context.Context, name, key string) (string, error)
	TestAPIs(ctx context.Context) (map[string]backend.APITestResult, error)
}

// Notifier surfaces submission outcomes.
type Notifier interface {
	Success(msg string) string
	Warning(msg string) string
	Error(msg string) string
}

// Panel tracks which providers are configured. Keys are forwarded to the
// backend and never kept.
type Panel struct {
	backend  Backend
	notifier Notifier

	mu         sync.Mutex
	configured map[string]bool
}

// NewPanel creates a Panel with every provider unconfigured.
func NewPanel(b Backend, n Notifier) *Panel {
	return &Panel{
		backend:    b,
		notifier:   n,
		configured: make(map[string]bool),
	}
}

// Load fetches the configured flags from the backend.
func (p *Panel) Load(ctx context.Context) error {
	cfg, err := p.backend.GetAPIConfig(ctx)
	if err != nil {
		p.notifier.Error(fmt.Sprintf("Failed to load API configuration: %v", err))
		return notify.Reported(fmt.Errorf("get api config: %w", err))
	}

	next := make(map[string]bool, len(cfg))
	for name, ok := range cfg {
		next[name] = ok
	}
	p.mu.Lock()
	p.configured = next
	p.mu.Unlock()
	return nil
}

// Save submits one provider key. On success the provider flips to configured.
// Every failure has already been shown as a notification.
func (p *Panel) Save(ctx context.Context, name, key string) error {
	if _, ok := Lookup(name); !ok {
		p.notifier.Warning(fmt.Sprintf("Unknown provider %q", name))
		return notify.Reported(&ValidationError{Provider: name, Reason: "unknown provider"})
	}
	key = strings.TrimSpace(key)
	if key == "" {
		p.notifier.Warning(fmt.Sprintf("Enter a key for %s", name))
		return notify.Reported(&ValidationError{Provider: name, Reason: "key is required"})
	}

	msg, err := p.backend.SaveAPIConfig(ctx, name, key)
	if err != nil {
		p.notifier.Error(fmt.Sprintf("Failed to save %s: %v", name, err))
		return notify.Reported(fmt.Errorf("save api config %s: %w", name, err))
	}

	p.mu.Lock()
	p.configured[name] = true
	p.mu.Unlock()

	if msg == "" {
		msg = fmt.Sprintf("%s configured", name)
	}
	p.notifier.Success(msg)
	return nil
}

// TestAll has the backend check every provider key. Each tested provider's
// configured flag becomes whether its key worked. Results come back in table
// order; providers the backend did not report are left out.
func (p *Panel) TestAll(ctx context.Context) ([]TestResult, error) {
	raw, err := p.backend.TestAPIs(ctx)
	if err != nil {
		p.notifier.Error(fmt.Sprintf("Failed to test APIs: %v", err))
		return nil, notify.Reported(fmt.Errorf("test apis: %w", err))
	}

	var results []TestResult
	var failing []string
	p.mu.Lock()
	for _, prov := range Providers {
		r, ok := raw[prov.Name]
		if !ok {
			continue
		}
		p.configured[prov.Name] = r.Working
		results = append(results, TestResult{Provider: prov, Working: r.Working, Error: r.Error})
		if !r.Working {
			failing = append(failing, prov.Name)
		}
	}
	p.mu.Unlock()

	switch {
	case len(results) == 0:
		p.notifier.Warning("The backend tested no APIs")
	case len(failing) == 0:
		p.notifier.Success(fmt.Sprintf("All %d APIs working", len(results)))
	default:
		p.notifier.Warning(fmt.Sprintf("%d of %d APIs working, failing: %s",
			len(results)-len(failing), len(results), strings.Join(failing, ", ")))
	}
	return results, nil
}

// Statuses returns every provider with its configured flag, in table order.
func (p *Panel) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, len(Providers))
	for i, prov := range Providers {
		out[i] = Status{Provider: prov, Configured: p.configured[prov.Name]}
	}
	return out
}
