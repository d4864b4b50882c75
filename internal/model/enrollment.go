package model

type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "PENDING"
	EnrollmentAccepted EnrollmentStatus = "ACCEPTED"
	EnrollmentRejected EnrollmentStatus = "REJECTED"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentPending, EnrollmentAccepted, EnrollmentRejected:
		return true
	}
	return false
}

// Enrollment 学生选课记录，(user_id, course_id) 唯一；退课直接删除，之后可以重新选
//
// swagger:model Enrollment
type Enrollment struct {
	HardModel
	UserID   uint             `gorm:"not null;uniqueIndex:uk_enrollment_user_course,priority:1" json:"userId"`
	CourseID uint             `gorm:"not null;index;uniqueIndex:uk_enrollment_user_course,priority:2" json:"courseId"`
	Status   EnrollmentStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	Course   *Course          `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	User     *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
