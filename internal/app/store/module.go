package store

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(
		NewGormStore,
		func(s *GormStore) Store { return s },
	),
)
