package order

import (
	"github.com/smallbiznis/merchline/internal/order/repository"
	"github.com/smallbiznis/merchline/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
