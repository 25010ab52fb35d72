//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
)

func InitializeApplication(ctx context.Context, opts Options) (*Application, func(), error) {
	wire.Build(AppSet)
	return nil, nil, nil
}
