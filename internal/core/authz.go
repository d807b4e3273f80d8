package core

// Policy carries the two authorization knobs that older data made ambiguous.
//
// EmptyMembersRole is the role granted to any authenticated caller on a
// project whose member list is empty. Documents created before sharing
// existed have no members anywhere, so the historical default is owner;
// deployments that prefer to fail closed can set viewer or none.
//
// ClosedReadOnly, when set, makes closed projects reject expense and
// category edits. Project field patches and member management stay
// role-gated either way, otherwise a closed project could never be reopened.
type Policy struct {
	EmptyMembersRole Role
	ClosedReadOnly   bool
}

// DefaultPolicy matches the behavior of the latest data revision:
// legacy-permissive empty member lists, closing a project is advisory only.
func DefaultPolicy() Policy {
	return Policy{EmptyMembersRole: RoleOwner}
}

// RoleOf computes the caller's role for one project. Emails match
// case-insensitively. The project's owner field grants owner directly; an
// empty member list falls back to the policy role.
func (p Policy) RoleOf(email string, project *Project) Role {
	e := NormalizeEmail(email)
	if e == "" || project == nil {
		return RoleNone
	}
	if project.Owner != "" && NormalizeEmail(project.Owner) == e {
		return RoleOwner
	}
	if len(project.Members) == 0 {
		return p.EmptyMembersRole
	}
	for _, m := range project.Members {
		if NormalizeEmail(m.Email) == e {
			return m.Role
		}
	}
	return RoleNone
}

// CanView reports whether the role grants read access.
func (r Role) CanView() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// CanEdit reports whether the role grants edits to expenses, categories and
// non-ownership project fields.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanManageMembers reports whether the role grants member management and
// project deletion.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner
}

// CanView is the read gate for one caller on one project.
func (p Policy) CanView(email string, project *Project) bool {
	return p.RoleOf(email, project).CanView()
}

// CanEditProject gates project field patches (name, dates, status).
func (p Policy) CanEditProject(email string, project *Project) bool {
	return p.RoleOf(email, project).CanEdit()
}

// CanEditLedger gates expense and category mutations, honoring
// ClosedReadOnly.
func (p Policy) CanEditLedger(email string, project *Project) bool {
	if p.ClosedReadOnly && project != nil && project.Status == StatusClosed {
		return false
	}
	return p.RoleOf(email, project).CanEdit()
}

// CanManageMembers gates member add/remove/role changes and project removal.
func (p Policy) CanManageMembers(email string, project *Project) bool {
	return p.RoleOf(email, project).CanManageMembers()
}
