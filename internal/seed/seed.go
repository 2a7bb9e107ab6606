package seed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"piexed/internal/models"
)

const RoleAdmin = "admin"

var ErrIncompleteAdmin = errors.New("admin username, email and password are required")

// Report summarizes what a Load call inserted. It never carries secrets.
type Report struct {
	AdminCreated  bool
	PlansCreated  int
	ModelsCreated int
	Settings      int
}

type Loader struct {
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
	// Now is used for timestamps; nil means time.Now.
	Now func() time.Time
}

// Load inserts the bootstrap admin, the site and storage settings and the
// default catalog. Rows that already exist by natural key are left alone, so
// Load can be repeated against a partially or fully seeded database.
func (l Loader) Load(ctx context.Context, gdb *gorm.DB, req models.InstallRequest) (Report, error) {
	if req.AdminUser == nil {
		return Report{}, ErrIncompleteAdmin
	}
	admin := *req.AdminUser
	admin.Username = strings.TrimSpace(admin.Username)
	admin.Email = strings.TrimSpace(admin.Email)
	if admin.Username == "" || admin.Email == "" || admin.Password == "" {
		return Report{}, ErrIncompleteAdmin
	}

	cost := l.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), cost)
	if err != nil {
		return Report{}, err
	}

	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	var report Report
	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := ensureAdmin(tx, admin, string(hash), now)
		if err != nil {
			return err
		}
		report.AdminCreated = created

		settings := settingsFor(req)
		if err := upsertSettings(tx, settings, now); err != nil {
			return err
		}
		report.Settings = len(settings)

		if report.PlansCreated, err = ensurePlans(tx, DefaultPlans, now); err != nil {
			return err
		}
		if report.ModelsCreated, err = ensureModels(tx, DefaultModels, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// ensureAdmin creates the bootstrap identity unless a user with the same
// username or email, or any admin, already exists.
func ensureAdmin(tx *gorm.DB, admin models.AdminUser, hash string, now time.Time) (bool, error) {
	var n int64
	if err := tx.Model(&userRow{}).
		Where("username = ? OR email = ? OR role = ?", admin.Username, admin.Email, RoleAdmin).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	row := userRow{
		ID:        newID(now),
		Username:  admin.Username,
		Email:     admin.Email,
		Password:  hash,
		Role:      RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type setting struct {
	key   string
	value string
}

func settingsFor(req models.InstallRequest) []setting {
	var site models.SiteConfig
	if req.SiteConfig != nil {
		site = *req.SiteConfig
	}
	var st models.StorageConfig
	if req.StorageConfig != nil {
		st = *req.StorageConfig
	}
	return []setting{
		{"site_name", site.SiteName},
		{"site_description", site.SiteDescription},
		{"site_url", site.SiteURL},
		{"default_model", site.DefaultModel},
		{"storage_type", string(st.Type)},
		{"storage_path", st.Path},
		{"cloud_provider", st.CloudProvider},
		{"cloud_api_key", st.APIKey},
		{"cloud_bucket", st.Bucket},
		{"cloud_region", st.Region},
	}
}

// upsertSettings stores operator input keyed by setting name. A re-run with
// corrected input overwrites the previous value.
func upsertSettings(tx *gorm.DB, settings []setting, now time.Time) error {
	for _, s := range settings {
		row := settingRow{Key: s.key, Value: s.value, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func exists(tx *gorm.DB, model any, name string) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func ensurePlans(tx *gorm.DB, plans []Plan, now time.Time) (int, error) {
	created := 0
	for _, p := range plans {
		ok, err := exists(tx, &planRow{}, p.Name)
		if err != nil {
			return created, err
		}
		if ok {
			continue
		}
		features, err := json.Marshal(p.Features)
		if err != nil {
			return created, err
		}
		access, err := json.Marshal(p.ModelAccess)
		if err != nil {
			return created, err
		}
		limits, err := json.Marshal(p.UsageLimits)
		if err != nil {
			return created, err
		}
		row := planRow{
			ID:          newID(now),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Interval:    p.Interval,
			Features:    string(features),
			ModelAccess: string(access),
			UsageLimits: string(limits),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return created, res.Error
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}

func ensureModels(tx *gorm.DB, defs []Model, now time.Time) (int, error) {
	created := 0
	for _, m := range defs {
		ok, err := exists(tx, &modelRow{}, m.Name)
		if err != nil {
			return created, err
		}
		if ok {
			continue
		}
		params, err := json.Marshal(m.Parameters)
		if err != nil {
			return created, err
		}
		row := modelRow{
			ID:          newID(now),
			Name:        m.Name,
			Description: m.Description,
			Type:        m.Type,
			Provider:    m.Provider,
			ModelID:     m.ModelID,
			Parameters:  string(params),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return created, res.Error
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}
