package users

import (
	"fmt"
	"strings"
)

// Permission is a single capability. Roles carry a fixed set of them.
type Permission uint16

const (
	PermViewAllReports Permission = 1 << iota
	PermEditAttendance
	PermManageStudents
	PermManageUsers
	PermViewAnalytics
	PermExportData
	PermTakeAttendance
	PermViewClassReports
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermViewAllReports, "view_all_reports"},
	{PermEditAttendance, "edit_attendance"},
	{PermManageStudents, "manage_students"},
	{PermManageUsers, "manage_users"},
	{PermViewAnalytics, "view_analytics"},
	{PermExportData, "export_data"},
	{PermTakeAttendance, "take_attendance"},
	{PermViewClassReports, "view_class_reports"},
}

func (p Permission) String() string {
	var names []string
	for _, pn := range permissionNames {
		if p&pn.perm != 0 {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Names lists the individual permissions in p.
func (p Permission) Names() []string {
	out := []string{}
	for _, pn := range permissionNames {
		if p&pn.perm != 0 {
			out = append(out, pn.name)
		}
	}
	return out
}

// ParsePermission maps a permission name to its value.
func ParsePermission(name string) (Permission, error) {
	for _, pn := range permissionNames {
		if pn.name == name {
			return pn.perm, nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", name)
}

// Role is one of the three staff roles.
type Role string

const (
	RoleHOD          Role = "HOD"
	RoleClassTeacher Role = "Class Teacher"
	RoleTeacher      Role = "Teacher"
)

// Roles lists every valid role.
var Roles = []Role{RoleHOD, RoleClassTeacher, RoleTeacher}

const (
	hodPerms = PermViewAllReports | PermEditAttendance | PermManageStudents | PermManageUsers |
		PermViewAnalytics | PermExportData | PermTakeAttendance | PermViewClassReports
	classTeacherPerms = hodPerms &^ PermManageUsers
	teacherPerms      = PermTakeAttendance | PermViewClassReports | PermViewAnalytics
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHOD, RoleClassTeacher, RoleTeacher:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Permissions returns the role's capability set; unknown roles get none.
func (r Role) Permissions() Permission {
	switch r {
	case RoleHOD:
		return hodPerms
	case RoleClassTeacher:
		return classTeacherPerms
	case RoleTeacher:
		return teacherPerms
	}
	return 0
}

// Can reports whether the role holds every permission in p.
func (r Role) Can(p Permission) bool {
	return p != 0 && r.Permissions()&p == p
}

// Title is the display name of the role.
func (r Role) Title() string {
	if r == RoleHOD {
		return "Head of Department"
	}
	return string(r)
}
