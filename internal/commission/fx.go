package commission

import (
	"github.com/smallbiznis/disburse/internal/commission/repository"
	"github.com/smallbiznis/disburse/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.aggregator",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewAggregator),
)
