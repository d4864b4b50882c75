package model

// swagger:model Course
type Course struct {
	BaseModel
	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	CreatorID   uint   `gorm:"index" json:"creatorId"`
	// 需要审核时选课先进入 PENDING，由课程创建者处理
	RequireApproval bool     `gorm:"default:false" json:"requireApproval"`
	Lessons         []Lesson `gorm:"foreignKey:CourseID" json:"lessons,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID uint   `gorm:"index;not null" json:"courseId"`
	Title    string `gorm:"size:200;not null" json:"title"`
	Content  string `gorm:"type:text" json:"content"`
	Position int    `gorm:"default:0" json:"position"`
}

func (Lesson) TableName() string {
	return "lessons"
}
