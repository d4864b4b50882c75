package model

// swagger:model File
type File struct {
	BaseModel
	FileName        string  `gorm:"size:255" json:"fileName"`
	StoragePath     string  `gorm:"size:255;not null" json:"-"`
	URL             string  `gorm:"size:500" json:"url"`
	MimeType        string  `gorm:"size:100" json:"mimeType"`
	Size            int64   `json:"size"`
	DurationSeconds float64 `gorm:"default:0" json:"durationSeconds"` // 视频时长
	UploadedBy      uint    `gorm:"index" json:"uploadedBy"`
}

func (File) TableName() string {
	return "files"
}
