package rbac

const (
	RoleAdmin   = "admin"
	RoleProctor = "proctor"
)

const (
	PermExamManage    = "exam:manage"
	PermExamView      = "exam:view"
	PermAttemptView   = "attempt:view-all"
	PermAttemptGrade  = "attempt:grade"
	PermAttemptDelete = "attempt:delete"
	PermReportView    = "report:view"
	PermReportExport  = "report:export"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleProctor: {
		PermExamView,
		PermAttemptView,
		PermAttemptGrade,
		"report:*",
	},
	RoleAdmin: {
		"*", // everything
	},
}
