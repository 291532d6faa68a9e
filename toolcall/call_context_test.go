package toolcall_test

import (
	"context"
	"testing"

	"github.com/effective-security/toolgate/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CallContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, toolcall.GetCallContext(ctx))
	assert.Empty(t, toolcall.GetCallID(ctx))

	cc := toolcall.NewCallContext("", "Search", map[string]string{"tenant": "t1"})
	require.NotEmpty(t, cc.GetCallID())
	assert.Equal(t, "Search", cc.GetToolName())

	ctx = toolcall.WithCallContext(ctx, cc)
	assert.Equal(t, cc, toolcall.GetCallContext(ctx))
	assert.Equal(t, cc.GetCallID(), toolcall.GetCallID(ctx))

	_, ok := cc.GetMetadata("attempt")
	assert.False(t, ok)
	cc.SetMetadata("attempt", 2)
	v, ok := cc.GetMetadata("attempt")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	appData, ok := cc.AppData().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "t1", appData["tenant"])

	cc2 := toolcall.NewCallContext("explicit", "Search", nil)
	assert.Equal(t, "explicit", cc2.GetCallID())

	// generated IDs are unique
	assert.NotEqual(t, toolcall.NewCallID(), toolcall.NewCallID())
}
