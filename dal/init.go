package dal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekehi/ekehi-sync-server/dal/do"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var GlobalDBClient *gorm.DB

func GetDB(ctx context.Context) *gorm.DB {
	return GlobalDBClient.WithContext(ctx)
}

type DBConfig struct {
	// Path is the location of the on-device database file. The special
	// value ":memory:" opens a private in-memory database.
	Path string
}

// InitDB opens the local store and, when autoCreate is set, creates the
// tables for every cached entity kind.
func InitDB(cfg *DBConfig, autoCreate bool) error {
	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create data directory %v: %w", dir, err)
		}
	}

	log.Infof("Opening local store at %v...", cfg.Path)

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if autoCreate {
		err = CreateTables(db)
		if err != nil {
			return err
		}
	}

	GlobalDBClient = db

	log.Infof("Successfully open local store")

	return nil
}

func CreateTables(db *gorm.DB) error {
	log.Infof("Creating table user_profile_infos...")
	err := db.AutoMigrate(&do.UserProfileInfo{})
	if err != nil {
		log.Infof("Fail to create table user_profile_infos")
		return err
	}

	log.Infof("Creating table mining_session_infos...")
	err = db.AutoMigrate(&do.MiningSessionInfo{})
	if err != nil {
		log.Infof("Fail to create table mining_session_infos")
		return err
	}

	log.Infof("Creating table social_task_infos...")
	err = db.AutoMigrate(&do.SocialTaskInfo{})
	if err != nil {
		log.Infof("Fail to create table social_task_infos")
		return err
	}

	log.Infof("Creating table task_completion_infos...")
	err = db.AutoMigrate(&do.TaskCompletionInfo{})
	if err != nil {
		log.Infof("Fail to create table task_completion_infos")
		return err
	}
	return nil
}
