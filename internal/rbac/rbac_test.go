package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionAdmin, true},
		{RoleAdmin, ActionReport, true},
		{RoleStaff, ActionTriage, true},
		{RoleStaff, ActionResolve, true},
		{RoleStaff, ActionAdmin, false},
		{RoleStaff, ActionReport, false},
		{RoleCitizen, ActionReport, true},
		{RoleCitizen, ActionComment, true},
		{RoleCitizen, ActionTriage, false},
		{RoleCitizen, ActionResolve, false},
		{Role("unknown"), ActionRead, false},
	}

	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Error("expected admin to normalize to RoleAdmin")
	}
	if Normalize("staff") != RoleStaff {
		t.Error("expected staff to normalize to RoleStaff")
	}
	if Normalize("") != RoleCitizen {
		t.Error("expected empty role to normalize to RoleCitizen")
	}
	if Normalize("root") != RoleCitizen {
		t.Error("expected unknown role to normalize to RoleCitizen")
	}
}
