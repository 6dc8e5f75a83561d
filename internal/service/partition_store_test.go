package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionCreatesPartition(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBareBusiness(t, "acme")

	partitionID, err := env.partitionStore.Provision(business.ID.String())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(partitionID, "tenant_"))

	exists, err := env.partitionStore.Exists(partitionID)
	require.NoError(t, err)
	assert.True(t, exists)

	handle, err := env.partitionStore.Locate(partitionID)
	require.NoError(t, err)
	assert.NotNil(t, handle)
}

func TestProvisionRetriesOnCollision(t *testing.T) {
	env := newTestEnv(t)

	taken, err := env.partitionStore.Provision("first")
	require.NoError(t, err)

	// 前两次撞上已占用的标识，第三次才给新标识
	ids := []string{taken, taken, "tenant_fresh"}
	env.partitionStore.generateID = func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	partitionID, err := env.partitionStore.Provision("second")
	require.NoError(t, err)
	assert.Equal(t, "tenant_fresh", partitionID)
}

func TestProvisionFailsAfterExhaustedAttempts(t *testing.T) {
	env := newTestEnv(t)

	taken, err := env.partitionStore.Provision("first")
	require.NoError(t, err)

	env.partitionStore.generateID = func() string { return taken }

	_, err = env.partitionStore.Provision("second")
	assert.ErrorIs(t, err, ErrPartitionAllocation)
}

func TestDestroyRemovesPartition(t *testing.T) {
	env := newTestEnv(t)

	partitionID, err := env.partitionStore.Provision("acme")
	require.NoError(t, err)

	// 先打开句柄，销毁必须把缓存的句柄一并收掉
	_, err = env.partitionStore.Locate(partitionID)
	require.NoError(t, err)

	require.NoError(t, env.partitionStore.Destroy(partitionID))

	exists, err := env.partitionStore.Exists(partitionID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = env.partitionStore.Locate(partitionID)
	assert.Error(t, err)

	// 再次销毁返回可识别的哨兵错误
	assert.ErrorIs(t, env.partitionStore.Destroy(partitionID), ErrPartitionNotFound)
}
