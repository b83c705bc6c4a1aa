package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/internal/repository"
	"paycore/pkg/payment"
)

const redacted = "********"

// SettingsService resolves adapters and their per-provider settings, and serves the admin
// settings screens with secrets redacted.
type SettingsService struct {
	repo     *repository.SettingRepository
	registry *payment.Registry
}

func NewSettingsService(repo *repository.SettingRepository, registry *payment.Registry) *SettingsService {
	return &SettingsService{repo: repo, registry: registry}
}

func (s *SettingsService) adapter(p domain.Provider) (payment.Provider, error) {
	a, ok := s.registry.Get(p)
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "unknown payment provider %q", p)
	}
	return a, nil
}

func (s *SettingsService) load(ctx context.Context, p domain.Provider) (payment.Settings, bool, error) {
	row, err := s.repo.Get(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return payment.Settings{}, false, nil
	}
	if err != nil {
		return payment.Settings{}, false, err
	}
	return payment.SettingsFromConfig(row.Enabled, row.Config), true, nil
}

// ForCheckout returns the adapter only if the provider is enabled and has credentials.
func (s *SettingsService) ForCheckout(ctx context.Context, p domain.Provider) (payment.Provider, payment.Settings, error) {
	a, err := s.adapter(p)
	if err != nil {
		return nil, payment.Settings{}, err
	}
	st, found, err := s.load(ctx, p)
	if err != nil {
		return nil, payment.Settings{}, err
	}
	if !found || !st.Enabled {
		return nil, payment.Settings{}, apperr.Newf(apperr.ProviderUnavailable, "payment provider %s is not enabled", p)
	}
	if err := requireConfigured(a, st); err != nil {
		return nil, payment.Settings{}, err
	}
	return a, st, nil
}

// ForOperation is used for verify, refund and cancel on existing intents. A provider that was
// disabled after the charge was created still has to settle it, so only credentials matter.
func (s *SettingsService) ForOperation(ctx context.Context, p domain.Provider) (payment.Provider, payment.Settings, error) {
	a, err := s.adapter(p)
	if err != nil {
		return nil, payment.Settings{}, err
	}
	st, _, err := s.load(ctx, p)
	if err != nil {
		return nil, payment.Settings{}, err
	}
	if err := requireConfigured(a, st); err != nil {
		return nil, payment.Settings{}, err
	}
	return a, st, nil
}

// ForWebhook never fails on missing settings; an empty webhook secret is handled by the
// unsigned-webhook policy.
func (s *SettingsService) ForWebhook(ctx context.Context, p domain.Provider) (payment.Provider, payment.Settings, error) {
	a, err := s.adapter(p)
	if err != nil {
		return nil, payment.Settings{}, err
	}
	st, _, err := s.load(ctx, p)
	return a, st, err
}

func requireConfigured(a payment.Provider, st payment.Settings) error {
	if k, ok := a.(payment.Keyless); ok && k.Keyless() {
		return nil
	}
	if st.Credential() == "" {
		return apperr.Newf(apperr.ProviderUnavailable, "payment provider %s is not configured", a.Name())
	}
	return nil
}

// SettingView is a provider setting as shown to admins.
type SettingView struct {
	Provider   domain.Provider `json:"provider"`
	Enabled    bool            `json:"enabled"`
	Configured bool            `json:"configured"`
	Config     map[string]any  `json:"config"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

func (s *SettingsService) view(p domain.Provider, row *models.ProviderSetting) SettingView {
	v := SettingView{Provider: p, Config: map[string]any{}}
	if row == nil {
		return v
	}
	v.Enabled = row.Enabled
	v.Config = Redact(row.Config)
	updated := row.UpdatedAt
	v.UpdatedAt = &updated
	if a, ok := s.registry.Get(p); ok {
		v.Configured = requireConfigured(a, payment.SettingsFromConfig(row.Enabled, row.Config)) == nil
	}
	return v
}

// List returns every known provider, configured or not.
func (s *SettingsService) List(ctx context.Context) ([]SettingView, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[domain.Provider]*models.ProviderSetting, len(rows))
	for i := range rows {
		byProvider[rows[i].Provider] = &rows[i]
	}
	out := make([]SettingView, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		out = append(out, s.view(p, byProvider[p]))
	}
	return out, nil
}

func (s *SettingsService) Get(ctx context.Context, p domain.Provider) (SettingView, error) {
	if _, err := s.adapter(p); err != nil {
		return SettingView{}, err
	}
	row, err := s.repo.Get(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return s.view(p, nil), nil
	}
	if err != nil {
		return SettingView{}, err
	}
	return s.view(p, row), nil
}

// UpdateSettingInput replaces a provider's settings. Secret values that are empty or still
// redacted keep their stored value, so the admin form can round-trip a GET response.
type UpdateSettingInput struct {
	Enabled *bool          `json:"enabled"`
	Config  map[string]any `json:"config"`
}

func (s *SettingsService) Update(ctx context.Context, p domain.Provider, in UpdateSettingInput) (SettingView, error) {
	if _, err := s.adapter(p); err != nil {
		return SettingView{}, err
	}
	row, err := s.repo.Get(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		row = &models.ProviderSetting{Provider: p, Config: datatypes.JSONMap{}}
	} else if err != nil {
		return SettingView{}, err
	}

	next := datatypes.JSONMap{}
	for k, v := range row.Config {
		next[k] = v
	}
	for k, v := range in.Config {
		if isSecretKey(k) {
			if str, _ := v.(string); str == "" || str == redacted {
				continue
			}
		}
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	enabled := row.Enabled
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	upsert := &models.ProviderSetting{Provider: p, Enabled: enabled, Config: next, UpdatedAt: time.Now()}
	if err := s.repo.Upsert(ctx, upsert); err != nil {
		return SettingView{}, err
	}
	return s.Get(ctx, p)
}

// Redact copies cfg with secret values masked.
func Redact(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if isSecretKey(k) {
			if str, _ := v.(string); str != "" {
				out[k] = redacted
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isSecretKey(k string) bool {
	for _, s := range payment.SecretKeys {
		if s == k {
			return true
		}
	}
	return false
}
