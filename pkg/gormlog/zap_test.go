package gormlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCaller(t *testing.T) {
	cases := map[string]string{
		"": "",
		"/home/ci/paysettle/internal/app/store/gorm.go:38": "internal/app/store/gorm.go:38",
		"/src/pkg/money/money.go:12":                       "pkg/money/money.go:12",
		"/a/b/c/d/e.go:7":                                  "c/d/e.go:7",
		"x/y.go:1":                                         "x/y.go:1",
	}
	for in, want := range cases {
		assert.Equal(t, want, shortCaller(in), in)
	}
}
