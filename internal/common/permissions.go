package common

// File permission constants
const (
	// FilePermissionSecure is used for the config file, which may hold warehouse passwords
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for generated output such as HTML summaries
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for ~/.kpisync
	DirPermissionSecure = 0700
)
