package providers

import (
	"github.com/smallbiznis/merchline/internal/providers/email"
	"github.com/smallbiznis/merchline/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
