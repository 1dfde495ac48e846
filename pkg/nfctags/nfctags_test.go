package nfctags

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *rtdb.MemoryTree) {
	tree := rtdb.NewMemoryTree()
	require.NoError(t, tree.Load([]byte(`{
		"Traveler": {
			"9876543210": {"name": "Mina", "email": "mina@example.com"}
		}
	}`)))

	manager := NewManager(tree)
	manager.now = func() time.Time { return time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC) }

	return manager, tree
}

func TestUIDFormatting(t *testing.T) {
	assert.Equal(t, "04A1B2C3", NormaliseUID(" 04 a1 b2\tc3 "))
	assert.Equal(t, "04 A1 B2 C3", DisplayUID("04a1b2c3"))
	assert.Equal(t, "04 A", DisplayUID("04a"))
	assert.Equal(t, "", DisplayUID(""))
}

func TestAssign(t *testing.T) {
	ctx := context.Background()
	manager, tree := newManager(t)

	tag, err := manager.Assign(ctx, "9876543210", "04 a1 b2 c3")
	require.NoError(t, err)
	assert.Equal(t, Tag{
		UID:        "04A1B2C3",
		Phone:      "9876543210",
		AssignedAt: "2024-06-10T08:30:00.000Z",
		DisplayUID: "04 A1 B2 C3",
	}, *tag)

	var traveler map[string]string
	require.NoError(t, tree.Get(ctx, "Traveler/9876543210", &traveler))
	assert.Equal(t, map[string]string{"name": "Mina", "email": "mina@example.com", "uid": "04A1B2C3"}, traveler)

	var stored map[string]string
	require.NoError(t, tree.Get(ctx, "NFCtags/04A1B2C3", &stored))
	assert.Equal(t, map[string]string{
		"phone":      "9876543210",
		"assignedAt": "2024-06-10T08:30:00.000Z",
		"displayUID": "04 A1 B2 C3",
	}, stored)
}

func TestAssignRejects(t *testing.T) {
	ctx := context.Background()
	manager, tree := newManager(t)

	for _, phone := range []string{"", "12345", "98765432101234567", "98765-43210", "+919876543210"} {
		_, err := manager.Assign(ctx, phone, "04A1B2C3")
		assert.ErrorIs(t, err, ErrInvalidPhone, phone)
	}

	for _, uid := range []string{"", "04A1B2", "04A1B2C3D4", "0x04A1B2", "ZZA1B2C3"} {
		_, err := manager.Assign(ctx, "9876543210", uid)
		assert.ErrorIs(t, err, ErrInvalidUID, uid)
	}

	_, err := manager.Assign(ctx, "9000000000", "04A1B2C3")
	assert.ErrorIs(t, err, ErrTravelerNotFound)

	var tags rtdb.Value
	require.NoError(t, tree.Get(ctx, TagsPath, &tags))
	assert.Equal(t, "null", string(tags))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t)

	_, err := manager.Check(ctx, "04A1B2C3")
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = manager.Check(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidUID)

	_, err = manager.Assign(ctx, "9876543210", "04A1B2C3")
	require.NoError(t, err)

	tag, err := manager.Check(ctx, "04 a1 b2 c3")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", tag.Phone)
	assert.Equal(t, "04A1B2C3", tag.UID)
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	tree := rtdb.NewMemoryTree()
	manager := NewManager(tree)

	for i := range 12 {
		uid := fmt.Sprintf("0000%04X", i)
		require.NoError(t, tree.Set(ctx, "NFCtags/"+uid, map[string]string{
			"phone":      "9876543210",
			"assignedAt": time.Date(2024, 6, 1+(i*7)%12, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		}))
	}
	require.NoError(t, tree.Set(ctx, "NFCtags/FFFFFFFF", map[string]string{"phone": "9000000000"}))

	tags, err := manager.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, tags, RecentLimit)

	uids := []string{}
	for _, tag := range tags {
		uids = append(uids, tag.UID)
	}
	assert.NotContains(t, uids, "00000000")
	assert.NotContains(t, uids, "00000001")
	assert.NotContains(t, uids, "00000002")

	assert.Equal(t, "FFFFFFFF", tags[len(tags)-1].UID)
	assert.Equal(t, UnknownAssignedAt, tags[len(tags)-1].AssignedAt)
	assert.Equal(t, "FF FF FF FF", tags[len(tags)-1].DisplayUID)

	for i := 1; i < len(tags)-1; i++ {
		assert.GreaterOrEqual(t, tags[i-1].AssignedAt, tags[i].AssignedAt)
	}

	empty, err := NewManager(rtdb.NewMemoryTree()).Recent(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
