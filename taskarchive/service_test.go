package taskarchive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
)

func TestAppendBatchRequiresTasksCaller(t *testing.T) {
	svc := New("tasks")
	err := svc.AppendBatch("votings", []ArchivedTask{{ID: 1}})
	assert.Error(t, err)
}

func TestAppendBatchStampsDefaultVersion(t *testing.T) {
	svc := New("tasks")
	require.NoError(t, svc.AppendBatch("tasks", []ArchivedTask{{ID: 1}}))
	page := svc.GetArchivedTasks(false, 0, 10)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, currentVersion, page.Entries[0].Version)
}

func TestGetArchivedTasksPaginationAndOrder(t *testing.T) {
	svc := New("tasks")
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, svc.AppendBatch("tasks", []ArchivedTask{{ID: i}}))
	}

	page := svc.GetArchivedTasks(false, 0, 2)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, uint64(1), page.Entries[0].ID)
	assert.Equal(t, uint64(3), page.Left)

	page = svc.GetArchivedTasks(true, 0, 2)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, uint64(5), page.Entries[0].ID)

	page = svc.GetArchivedTasks(false, 10, 2)
	assert.Empty(t, page.Entries)
	assert.Equal(t, uint64(0), page.Left)
}

func TestSetNextRequiresTasksCaller(t *testing.T) {
	svc := New("tasks")
	next := core.NewRandomPrincipal()
	assert.Error(t, svc.SetNext("votings", &next))
	require.NoError(t, svc.SetNext("tasks", &next))

	page := svc.GetArchivedTasks(false, 0, 1)
	require.NotNil(t, page.Next)
	assert.Equal(t, next, *page.Next)
}
