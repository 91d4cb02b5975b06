package telemetry_test

import (
	"context"
	"testing"

	"github.com/italolelis/restricted_saver/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_NilReceiver(t *testing.T) {
	var tel *telemetry.Telemetry

	ctx := context.Background()

	gotCtx, span := tel.StartSpan(ctx, "anything")
	require.NotNil(t, span)
	assert.Equal(t, ctx, gotCtx)

	// The no-op span must be safe to use.
	span.End()
}
