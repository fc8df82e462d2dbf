package correlation

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(NewMatcher, NewValidator),
)
