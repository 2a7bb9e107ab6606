package seed

import "time"

type userRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Username      string    `gorm:"column:username"`
	Email         string    `gorm:"column:email"`
	Password      string    `gorm:"column:password"`
	Role          string    `gorm:"column:role"`
	APIKeyEnabled bool      `gorm:"column:api_key_enabled"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (userRow) TableName() string { return "users" }

type settingRow struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (settingRow) TableName() string { return "settings" }

type planRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name"`
	Description string    `gorm:"column:description"`
	Price       float64   `gorm:"column:price"`
	Interval    string    `gorm:"column:billing_interval"`
	Features    string    `gorm:"column:features"`
	ModelAccess string    `gorm:"column:model_access"`
	UsageLimits string    `gorm:"column:usage_limits"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (planRow) TableName() string { return "subscription_plans" }

type modelRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name"`
	Description string    `gorm:"column:description"`
	Type        string    `gorm:"column:type"`
	Provider    string    `gorm:"column:provider"`
	ModelID     string    `gorm:"column:model_id"`
	Parameters  string    `gorm:"column:parameters"`
	IsActive    bool      `gorm:"column:is_active"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (modelRow) TableName() string { return "ai_models" }
