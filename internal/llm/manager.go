package llm

import (
	"fmt"
	"sync"

	"github.com/agentturn/core/pkg/models"
)

// userPref is a sticky provider/model choice for one user.
type userPref struct {
	provider string
	model    string
}

// Selection is the outcome of ProviderManager.SelectFor.
type Selection struct {
	Provider         *ResilientProvider
	Model            string
	FailedOver       bool
	OriginalProvider string
}

// ProviderManager holds every configured provider plus its breaker and
// picks a provider/model for each turn, failing over when the preferred
// provider's breaker is tripped. It implements the failover-aware semantics
// per SPEC_FULL.md §9 (the source's non-failover ProviderManager variant is
// not built).
type ProviderManager struct {
	mu             sync.RWMutex
	providers      map[string]*ResilientProvider
	models         map[string][]string
	userPrefs      map[string]userPref
	defaultProvider string
	defaultModel    string
	tierModels      map[models.Tier]string
	failoverChain   []string
}

// NewProviderManager constructs an empty manager. Register providers with
// RegisterProvider before use. tierModels optionally maps a tier to the
// default model used when a user has no sticky preference (e.g. a cheaper
// model for light turns, a more capable one for heavy); nil means every
// tier falls back to defaultModel.
func NewProviderManager(defaultProvider, defaultModel string, failoverChain []string, tierModels map[models.Tier]string) *ProviderManager {
	return &ProviderManager{
		providers:       make(map[string]*ResilientProvider),
		models:          make(map[string][]string),
		userPrefs:       make(map[string]userPref),
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		tierModels:      tierModels,
		failoverChain:   failoverChain,
	}
}

// defaultModelFor resolves the model used when userID has no sticky
// preference, honoring a tier-specific default if configured.
func (m *ProviderManager) defaultModelFor(tier models.Tier) string {
	if model, ok := m.tierModels[tier]; ok && model != "" {
		return model
	}
	return m.defaultModel
}

// RegisterProvider adds a provider (already wrapped for resilience) with its
// list of configured models.
func (m *ProviderManager) RegisterProvider(p *ResilientProvider, configuredModels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
	m.models[p.Name()] = configuredModels
}

// SetUserPreference pins a user to a provider/model. Fails if the provider
// is unknown or the model is not in that provider's configured list.
func (m *ProviderManager) SetUserPreference(userID, provider, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	configured, ok := m.models[provider]
	if !ok {
		return fmt.Errorf("llm: unknown provider %q", provider)
	}
	if !contains(configured, model) {
		return fmt.Errorf("llm: model %q not configured for provider %q", model, provider)
	}
	m.userPrefs[userID] = userPref{provider: provider, model: model}
	return nil
}

// SelectFor picks a provider/model for userID and tier, following spec §4.4.
// tier only affects the model chosen when userID has no sticky preference.
func (m *ProviderManager) SelectFor(userID string, tier models.Tier) (Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pref, ok := m.userPrefs[userID]
	if !ok {
		pref = userPref{provider: m.defaultProvider, model: m.defaultModelFor(tier)}
	}

	if p, ok := m.providers[pref.provider]; ok && p.Breaker().CanExecute() {
		return Selection{Provider: p, Model: pref.model}, nil
	}

	// Walk the failover chain, skipping the preferred provider.
	for _, name := range m.failoverChain {
		if name == pref.provider {
			continue
		}
		p, ok := m.providers[name]
		if !ok || !p.Breaker().CanExecute() {
			continue
		}
		return Selection{
			Provider:         p,
			Model:            m.fallbackModel(name, pref),
			FailedOver:       true,
			OriginalProvider: pref.provider,
		}, nil
	}

	// Failover chain exhausted: try any remaining usable provider.
	for name, p := range m.providers {
		if name == pref.provider || contains(m.failoverChain, name) {
			continue
		}
		if !p.Breaker().CanExecute() {
			continue
		}
		return Selection{
			Provider:         p,
			Model:            m.fallbackModel(name, pref),
			FailedOver:       true,
			OriginalProvider: pref.provider,
		}, nil
	}

	return Selection{}, ErrAllProvidersUnavailable
}

// fallbackModel picks the model to use on a provider we failed over to: the
// user's originally-requested model if that provider also lists it,
// otherwise the provider's first configured model.
func (m *ProviderManager) fallbackModel(provider string, pref userPref) string {
	configured := m.models[provider]
	if contains(configured, pref.model) {
		return pref.model
	}
	if len(configured) > 0 {
		return configured[0]
	}
	return pref.model
}

// MustProviderForTest returns the registered provider by name, for tests in
// other packages that need to manipulate a provider's breaker directly.
// Panics if the provider is not registered.
func (m *ProviderManager) MustProviderForTest(name string) *ResilientProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	if !ok {
		panic("llm: provider " + name + " not registered")
	}
	return p
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
