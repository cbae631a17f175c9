package shibauth

import (
	"context"
	"fmt"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/pkg/shibauth/models"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// SyncGroups makes the user's group membership set equal to target, creating
// groups that do not exist yet. Groups the user belongs to that are absent
// from target are removed, whoever added them. Runs on every authenticated
// request, so converged state is a cheap no-op with zero writes. Returns how
// many memberships were added and removed.
//
// Callers must not invoke this when no group attributes are configured;
// passing an empty target here strips the user of every membership.
func SyncGroups(ctx context.Context, st store.Store, user *models.User, target []string) (added, removed int, err error) {
	want := make(map[string]struct{}, len(target))
	for _, name := range target {
		want[name] = struct{}{}
	}

	for _, group := range user.Groups {
		if _, ok := want[group.Name]; ok {
			continue
		}
		if err := st.RemoveUserFromGroup(ctx, user.Username, group.Name); err != nil {
			return added, removed, fmt.Errorf("failed to remove %q from group %q: %w", user.Username, group.Name, err)
		}
		removed++
	}

	for _, name := range target {
		if user.HasGroup(name) {
			continue
		}
		if _, err := st.GetOrCreateGroup(ctx, name); err != nil {
			return added, removed, fmt.Errorf("failed to ensure group %q: %w", name, err)
		}
		if err := st.AddUserToGroup(ctx, user.Username, name); err != nil {
			return added, removed, fmt.Errorf("failed to add %q to group %q: %w", user.Username, name, err)
		}
		added++
	}

	if added > 0 || removed > 0 {
		logger.Debug("synchronized group memberships",
			"username", user.Username, "added", added, "removed", removed)
	}
	return added, removed, nil
}
