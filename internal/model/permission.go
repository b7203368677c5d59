package model

// Permission represents a string code for a specific staff action.
type Permission string

const (
	// PermissionAssessmentsMonitor allows watching live sessions of an assessment.
	PermissionAssessmentsMonitor Permission = "assessments:monitor"

	// PermissionAttemptsRead allows viewing the attempt ledger of an assessment.
	PermissionAttemptsRead Permission = "attempts:read"

	// PermissionAttemptsExport allows downloading the attempt ledger as a spreadsheet.
	PermissionAttemptsExport Permission = "attempts:export"

	// PermissionSystemRead allows watching gateway health metrics.
	PermissionSystemRead Permission = "system:read"
)

// AllPermissions lists every permission the gateway checks. Used by the
// token tool to mint an all-access staff token.
func AllPermissions() []string {
	return []string{
		string(PermissionAssessmentsMonitor),
		string(PermissionAttemptsRead),
		string(PermissionAttemptsExport),
		string(PermissionSystemRead),
	}
}
