package model

import "time"

type User struct {
	ID                 uint64    `gorm:"primaryKey" json:"id"`
	Username           string    `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Password           string    `gorm:"size:255;not null" json:"-"`
	Nickname           string    `gorm:"size:64" json:"nickname"`
	Email              string    `gorm:"size:128" json:"email,omitempty"`
	Gender             string    `gorm:"size:16;index" json:"gender"`
	Age                *int      `json:"age"`
	Profession         string    `gorm:"size:64" json:"profession"`
	MaritalStatus      string    `gorm:"size:32" json:"marital_status"`
	FertilityStatus    string    `gorm:"size:32" json:"fertility_status"`
	BirthLocation      string    `gorm:"size:128" json:"birth_location"`
	ResidenceLocation  string    `gorm:"size:128" json:"residence_location"`
	Hukou              string    `gorm:"size:32" json:"hukou"`
	Education          string    `gorm:"size:32" json:"education"`
	IncomeIndividual   string    `gorm:"size:32" json:"income_individual"`
	IncomeFamily       string    `gorm:"size:32" json:"income_family"`
	Housing            string    `gorm:"size:32" json:"housing"`
	EconomicDependency string    `gorm:"size:32" json:"economic_dependency"`
	Bio                string    `gorm:"type:text" json:"bio"`
	IsGuru             bool      `gorm:"not null;default:false;index" json:"is_guru"`
	GuruIntro          string    `gorm:"type:text" json:"guru_intro"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// UserDiseaseHistory 关联社区/子社区，或仅填写疾病名称
type UserDiseaseHistory struct {
	ID          uint64  `gorm:"primaryKey" json:"-"`
	UserID      uint64  `gorm:"not null;index" json:"-"`
	CommunityID *uint64 `gorm:"index" json:"community_id"`
	Stage       string  `gorm:"size:64;not null;default:''" json:"stage"`
	Type        string  `gorm:"size:64;not null;default:''" json:"type"`
	Disease     string  `gorm:"size:128;not null;default:''" json:"disease"`
	OnsetDate   *string `gorm:"size:7" json:"onset_date"` // YYYY-MM
}

type UserHospital struct {
	ID       uint64 `gorm:"primaryKey" json:"-"`
	UserID   uint64 `gorm:"not null;index" json:"-"`
	Hospital string `gorm:"size:128;not null" json:"hospital"`
}
