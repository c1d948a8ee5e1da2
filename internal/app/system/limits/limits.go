// internal/app/system/limits/limits.go
package limits

// Request body size limits for the JSON API.
const (
	// MaxAPIBody covers article and profile writes, which may carry a
	// base64 image of up to 1 MB (about 1.4 MB encoded).
	MaxAPIBody = 2 << 20 // 2 MB

	// MaxAuthBody covers register and sign-in payloads.
	MaxAuthBody = 16 << 10 // 16 KB
)
