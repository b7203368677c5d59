package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrLearnerAccessOnly ErrCode = "LEARNER_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrLoadFailed        ErrCode = "LOAD_FAILED"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrSubmitInProgress  ErrCode = "SUBMIT_IN_PROGRESS"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrNotSubmitted      ErrCode = "NOT_SUBMITTED"
	ErrUpstreamForbidden ErrCode = "UPSTREAM_FORBIDDEN"
	ErrUpstreamFailed    ErrCode = "UPSTREAM_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrLearnerAccessOnly:
		return "Sumber daya ini terbatas untuk peserta."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk staf."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Sesi tes tidak ditemukan atau sudah berakhir."
	case ErrLoadFailed:
		return "Tes tidak dapat dimuat. Silakan coba lagi."
	case ErrSubmissionFailed:
		return "Jawaban gagal dikirim. Silakan coba kirim ulang."
	case ErrSubmitInProgress:
		return "Pengiriman jawaban untuk tes ini sedang diproses."
	case ErrSessionClosed:
		return "Sesi tes tidak lagi menerima perubahan."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak termasuk dalam tes ini."
	case ErrNotSubmitted:
		return "Tes ini belum berhasil dikirim."
	case ErrUpstreamForbidden:
		return "Server platform menolak akses ke tes ini."
	case ErrUpstreamFailed:
		return "Server platform tidak dapat dihubungi. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
