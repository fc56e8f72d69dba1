package db

import (
	"fmt"
	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
	"github.com/yungbote/manuscript-backend/internal/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "manuscript", log)
	log.Debug("Environment variables loaded")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
	}
	log.Info("uuid-ossp extension enabled")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Project{},
		&types.ProjectPermission{},
		&types.PageImage{},
		&types.ModelVersion{},
		&types.FeedbackRecord{},
		&types.TrainingJob{},
		&types.RecognitionResult{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	// Partial index keeping the active-model lookup O(1) on the serving path.
	if err := s.db.Exec(`
    CREATE UNIQUE INDEX IF NOT EXISTS uq_model_version_owner_active
    ON model_version (owner_id)
    WHERE status = 'active'
  `).Error; err != nil {
		return fmt.Errorf("Failed to create uq_model_version_owner_active: %w", err)
	}
	// At most one queued/running training job per owner, enforced at the DB too.
	if err := s.db.Exec(`
    CREATE UNIQUE INDEX IF NOT EXISTS uq_training_job_owner_inflight
    ON training_job (owner_id)
    WHERE status IN ('queued', 'running')
  `).Error; err != nil {
		return fmt.Errorf("Failed to create uq_training_job_owner_inflight: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
