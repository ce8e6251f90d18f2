// internal/app/system/limits/limits.go
package limits

// Request body size limits.
const (
	// MaxPayloadSize is the largest application document accepted on submission.
	MaxPayloadSize = 256 << 10 // 256 KB

	// MaxNotificationSize bounds a decision (amount, date, letter text, address).
	MaxNotificationSize = 64 << 10 // 64 KB

	// MaxObservationsSize bounds the staff notes of one application.
	MaxObservationsSize = 64 << 10 // 64 KB

	// MaxStatusSize bounds a status change request.
	MaxStatusSize = 1 << 10 // 1 KB

	// MaxInstitutionSize bounds an institution create or update.
	MaxInstitutionSize = 8 << 10 // 8 KB
)
