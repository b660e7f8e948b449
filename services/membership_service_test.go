package services

import (
	"context"
	"testing"

	"familyhub_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupMakesFounderParent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)
	assert.Equal(t, "The Smiths", group.Name)
	assert.Equal(t, "alice", group.CreatedBy)
	assert.NotEmpty(t, group.GroupID)

	members, err := env.members.ListMembers(ctx, group.GroupID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, models.RoleParent, members[0].Role)
	assert.True(t, members[0].CanEdit)
	assert.True(t, members[0].CanView)
	assert.Equal(t, "Alice", members[0].DisplayName)

	admin, err := env.members.IsAdmin(ctx, group.GroupID, "alice")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestCreateGroupValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.members.CreateGroup(ctx, "   ", "alice")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.members.CreateGroup(ctx, "The Smiths", "")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestListGroupsForUserMergesFoundedAndJoined(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	founded, err := env.members.CreateGroup(ctx, "Founded", "alice")
	require.NoError(t, err)
	other, err := env.members.CreateGroup(ctx, "Joined", "bob")
	require.NoError(t, err)
	_, err = env.members.AddMemberDirect(ctx, other.GroupID, "alice", models.RoleChild, "bob")
	require.NoError(t, err)

	groups, err := env.members.ListGroupsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Newest first
	assert.Equal(t, other.GroupID, groups[0].GroupID)
	assert.Equal(t, founded.GroupID, groups[1].GroupID)
}

func TestAddMemberDirectRejectsDuplicate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)

	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleChild, "alice")
	require.NoError(t, err)

	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleViewer, "alice")
	assert.ErrorIs(t, err, models.ErrAlreadyMember)

	members, err := env.members.ListMembers(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Len(t, members, 2, "the duplicate add must not change the member list")
}

func TestAddMemberDirectRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)
	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleChild, "alice")
	require.NoError(t, err)

	// bob is a child, not an admin
	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "carol", models.RoleChild, "bob")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "carol", "owner", "alice")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRemoveMemberRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)
	bob, err := env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleChild, "alice")
	require.NoError(t, err)
	carol, err := env.members.AddMemberDirect(ctx, group.GroupID, "carol", models.RoleChild, "alice")
	require.NoError(t, err)

	err = env.members.RemoveMember(ctx, carol.MembershipID, "bob")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	err = env.members.RemoveMember(ctx, bob.MembershipID, "alice")
	require.NoError(t, err)

	members, err := env.members.ListMembers(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	for _, m := range members {
		assert.NotEqual(t, "bob", m.UserID)
	}
}

func TestIsAdminCoversFounderAndParents(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)
	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleParent, "alice")
	require.NoError(t, err)
	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "carol", models.RoleChild, "alice")
	require.NoError(t, err)

	for user, want := range map[string]bool{"alice": true, "bob": true, "carol": false, "dave": false} {
		got, err := env.members.IsAdmin(ctx, group.GroupID, user)
		require.NoError(t, err)
		assert.Equal(t, want, got, "user %s", user)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)
	_, err = env.members.AddMemberDirect(ctx, group.GroupID, "bob", models.RoleChild, "alice")
	require.NoError(t, err)
	_, err = env.messages.AppendText(ctx, group.GroupID, "alice", "hello")
	require.NoError(t, err)
	_, err = env.requests.Submit(ctx, group.GroupID, "carol")
	require.NoError(t, err)

	// Only the founder may delete
	err = env.members.DeleteGroup(ctx, group.GroupID, "bob")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	err = env.members.DeleteGroup(ctx, group.GroupID, "alice")
	require.NoError(t, err)

	_, err = env.members.GetGroup(ctx, group.GroupID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, env.dynamo.tables[models.MembershipsTable])
	assert.Empty(t, env.dynamo.tables[models.ChatMessagesTable])
	assert.Empty(t, env.dynamo.tables[models.JoinRequestsTable])
}

func TestGetMembershipAbsent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	group, err := env.members.CreateGroup(ctx, "The Smiths", "alice")
	require.NoError(t, err)

	m, err := env.members.GetMembership(ctx, group.GroupID, "bob")
	require.NoError(t, err)
	assert.Nil(t, m)
}
