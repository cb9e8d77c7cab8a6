package model

import "time"

// Class is a teacher's class group. Exams are assigned to one class.
type Class struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	TeacherID int       `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrollmentStatus is a student's membership status in a class.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentApproved EnrollmentStatus = "approved"
	EnrollmentRejected EnrollmentStatus = "rejected"
)
