package orderquantity

import (
	"github.com/smallbiznis/merchline/internal/orderquantity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orderquantity.service",
	fx.Provide(service.New),
)
