package patient

import "time"

type Patient struct {
	ID          string    `gorm:"column:id;primaryKey"`
	FullName    string    `gorm:"column:full_name;not null"`
	PhoneNumber string    `gorm:"column:phone_number"`
	Email       *string   `gorm:"column:email"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Patient) TableName() string {
	return "patients"
}
