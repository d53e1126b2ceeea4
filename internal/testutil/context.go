package testutil

import (
	"context"

	"github.com/flexprice/timeline/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	ctx = types.SetOperator(ctx, "test")
	return ctx
}
