package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/disburse/internal/config"
	payeedomain "github.com/smallbiznis/disburse/internal/payee/domain"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"github.com/smallbiznis/disburse/internal/provider/mock"
	"github.com/smallbiznis/disburse/internal/provider/rise"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("provider",
	fx.Provide(NewEligibilityChecker),
	fx.Provide(ProvideRegistry),
)

// payeeEligibility resolves KYC eligibility from the local payee store.
type payeeEligibility struct {
	db   *gorm.DB
	repo payeedomain.Repository
}

func NewEligibilityChecker(db *gorm.DB, repo payeedomain.Repository) rise.EligibilityChecker {
	return &payeeEligibility{db: db, repo: repo}
}

func (e *payeeEligibility) CheckPayee(ctx context.Context, affiliateID snowflake.ID) error {
	account, err := e.repo.FindByAffiliateID(ctx, e.db, affiliateID)
	if err != nil {
		if errors.Is(err, payeedomain.ErrPayeeNotFound) {
			return fmt.Errorf("%w: no payee account for affiliate %s", providerdomain.ErrPayeeNotEligible, affiliateID)
		}
		return err
	}
	if !account.Eligible() {
		return fmt.Errorf("%w: kyc status %s", providerdomain.ErrPayeeNotEligible, account.KYCStatus)
	}
	return nil
}

// ProvideRegistry wires every known provider into the registry.
func ProvideRegistry(cfg config.Config, log *zap.Logger, eligibility rise.EligibilityChecker) *Registry {
	registry := NewRegistry()
	registry.Register(providerdomain.ProviderMock, mock.New())
	registry.Register(providerdomain.ProviderRise, rise.New(cfg.Rise, log, eligibility))
	return registry
}
