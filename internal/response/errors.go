package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrInvalidAccessCode   ErrCode = "INVALID_ACCESS_CODE"
	ErrNotEnrolled         ErrCode = "NOT_ENROLLED"
	ErrNotYetAvailable     ErrCode = "NOT_YET_AVAILABLE"
	ErrAlreadySubmitted    ErrCode = "ALREADY_SUBMITTED"
	ErrDuplicateSubmission ErrCode = "DUPLICATE_SUBMISSION"
	ErrSubmissionClosed    ErrCode = "SUBMISSION_CLOSED"
	ErrNotExamAuthor       ErrCode = "NOT_EXAM_AUTHOR"
	ErrNotClassOwner       ErrCode = "NOT_CLASS_OWNER"
	ErrExamPublished       ErrCode = "EXAM_PUBLISHED"
	ErrUnresolvedQuestions ErrCode = "UNRESOLVED_QUESTIONS"
	ErrInvalidSections     ErrCode = "INVALID_SECTIONS"
	ErrSubmissionNotFound  ErrCode = "SUBMISSION_NOT_FOUND"
	ErrInvalidScore        ErrCode = "INVALID_SCORE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrTeacherAccessOnly:
		return "Sumber daya ini terbatas untuk guru."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan jenis soal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrInvalidAccessCode:
		return "Kode akses ujian tidak valid."
	case ErrNotEnrolled:
		return "Anda tidak terdaftar di kelas ujian ini."
	case ErrNotYetAvailable:
		return "Ujian ini belum dapat dimulai."
	case ErrAlreadySubmitted:
		return "Anda sudah mengumpulkan ujian ini."
	case ErrDuplicateSubmission:
		return "Jawaban untuk ujian ini sudah tersimpan."
	case ErrSubmissionClosed:
		return "Waktu pengumpulan ujian telah berakhir."
	case ErrNotExamAuthor:
		return "Anda bukan pembuat ujian ini."
	case ErrNotClassOwner:
		return "Kelas tidak ditemukan atau bukan milik Anda."
	case ErrExamPublished:
		return "Ujian yang sudah dipublikasikan tidak dapat diubah."
	case ErrUnresolvedQuestions:
		return "Ujian memuat soal yang tidak ditemukan di bank soal."
	case ErrInvalidSections:
		return "Susunan bagian ujian tidak valid."
	case ErrSubmissionNotFound:
		return "Jawaban ujian tidak ditemukan."
	case ErrInvalidScore:
		return "Nilai berada di luar rentang yang diizinkan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrStorageUnavailable:
		return "Penyimpanan sedang tidak tersedia. Silakan coba lagi."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
