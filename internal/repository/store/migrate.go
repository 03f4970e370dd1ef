package store

import (
	"fmt"
	"sort"
	"time"

	"Hope_Community/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migration 按版本号顺序执行一次，执行结果记录在 schema_migrations
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

var communityMigrations = []Migration{
	{1, "create communities", func(tx *gorm.DB) error {
		return createTables(tx, &model.Community{}, &model.SubCommunityMember{})
	}},
	{2, "add communities.dimensions", func(tx *gorm.DB) error {
		if err := addColumns(tx, &model.Community{}, "Dimensions"); err != nil {
			return err
		}
		return tx.Model(&model.Community{}).Where("dimensions IS NULL").
			UpdateColumn("dimensions", "{}").Error
	}},
}

var userMigrations = []Migration{
	{1, "create users and memberships", func(tx *gorm.DB) error {
		return createTables(tx, &model.User{}, &model.UserCommunityMembership{})
	}},
	{2, "create user_disease_histories", func(tx *gorm.DB) error {
		return createTables(tx, &model.UserDiseaseHistory{})
	}},
	{3, "add household and economic fields", func(tx *gorm.DB) error {
		return addColumns(tx, &model.User{},
			"Hukou", "Education", "IncomeIndividual", "IncomeFamily", "Housing", "EconomicDependency")
	}},
	{4, "create user_hospitals", func(tx *gorm.DB) error {
		return createTables(tx, &model.UserHospital{})
	}},
	{5, "add guru profile and questions", func(tx *gorm.DB) error {
		if err := addColumns(tx, &model.User{}, "IsGuru", "GuruIntro", "Email"); err != nil {
			return err
		}
		return createTables(tx, &model.GuruQuestion{}, &model.GuruQuestionReply{})
	}},
	{6, "create membership_outbox", func(tx *gorm.DB) error {
		return createTables(tx, &model.MembershipOutbox{})
	}},
}

var threadMigrations = []Migration{
	{1, "create threads", func(tx *gorm.DB) error {
		return createTables(tx, &model.Thread{}, &model.ThreadCommunity{})
	}},
}

var replyMigrations = []Migration{
	{1, "create replies", func(tx *gorm.DB) error {
		return createTables(tx, &model.Reply{})
	}},
}

// Migrate 启动时对四个库依次执行未应用的迁移
func (s *Stores) Migrate(log *zap.Logger) error {
	steps := []struct {
		name       string
		db         *gorm.DB
		migrations []Migration
	}{
		{"communities", s.Communities, communityMigrations},
		{"users", s.Users, userMigrations},
		{"threads", s.Threads, threadMigrations},
		{"replies", s.Replies, replyMigrations},
	}
	for _, st := range steps {
		applied, err := Migrate(st.db, st.migrations)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", st.name, err)
		}
		log.Info("schema migrated", zap.String("store", st.name), zap.Int("applied", applied))
	}
	return nil
}

// Migrate 返回本次实际执行的迁移数
func Migrate(db *gorm.DB, migrations []Migration) (int, error) {
	if err := db.AutoMigrate(&model.SchemaMigration{}); err != nil {
		return 0, err
	}

	var done []model.SchemaMigration
	if err := db.Find(&done).Error; err != nil {
		return 0, err
	}
	seen := make(map[int]bool, len(done))
	for _, m := range done {
		seen[m.Version] = true
	}

	ordered := append([]Migration(nil), migrations...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	applied := 0
	for _, m := range ordered {
		if seen[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&model.SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied++
	}
	return applied, nil
}

func createTables(tx *gorm.DB, models ...any) error {
	for _, m := range models {
		if tx.Migrator().HasTable(m) {
			continue
		}
		if err := tx.Migrator().CreateTable(m); err != nil {
			return err
		}
	}
	return nil
}

// addColumns 给老库补字段，新建的表已包含这些字段时跳过
func addColumns(tx *gorm.DB, m any, fields ...string) error {
	for _, f := range fields {
		if tx.Migrator().HasColumn(m, f) {
			continue
		}
		if err := tx.Migrator().AddColumn(m, f); err != nil {
			return err
		}
	}
	return nil
}
