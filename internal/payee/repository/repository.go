package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/disburse/internal/cache"
	payeedomain "github.com/smallbiznis/disburse/internal/payee/domain"
	"gorm.io/gorm"
)

const cacheTTL = 30 * time.Second

// repository reads payee accounts with a short TTL cache in front;
// KYC status changes land within one TTL, which is acceptable because
// eligibility is re-checked per payment attempt anyway.
type repository struct {
	accounts *cache.TTLCache[snowflake.ID, payeedomain.PayeeAccount]
}

func Provide() payeedomain.Repository {
	return &repository{
		accounts: cache.NewTTLCache[snowflake.ID, payeedomain.PayeeAccount](),
	}
}

func (r *repository) FindByAffiliateID(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*payeedomain.PayeeAccount, error) {
	if cached, ok := r.accounts.Get(affiliateID); ok {
		account := cached
		return &account, nil
	}

	var account payeedomain.PayeeAccount
	err := db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payeedomain.ErrPayeeNotFound
		}
		return nil, err
	}

	r.accounts.Set(affiliateID, account, cacheTTL)
	return &account, nil
}
