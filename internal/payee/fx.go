package payee

import (
	"github.com/smallbiznis/disburse/internal/payee/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payee",
	fx.Provide(repository.Provide),
)
