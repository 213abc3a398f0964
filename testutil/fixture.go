package testutil

import (
	"testing"
	"time"

	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Epoch is the start time of every fixture clock
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Fixture is a fully wired core on an in-memory database
type Fixture struct {
	DB       *gorm.DB
	Core     *services.Core
	Clock    *services.ManualClock
	Sink     *services.RecordingSink
	S3       *services.MockS3Service
	UserInfo *services.MockUserInfo
}

// NewTestDB opens a migrated in-memory SQLite database private to t
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "Failed to connect to test database")

	// a single connection keeps every statement on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.AutoMigrate(db), "Failed to migrate test database")
	return db
}

// NewFixture wires a core and installs it, with the database, as the process-wide instance
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	RequireTestEnvironment(t)

	db := NewTestDB(t)
	f := &Fixture{
		DB:       db,
		Clock:    services.NewManualClock(Epoch),
		Sink:     services.NewRecordingSink(),
		S3:       services.NewMockS3Service(),
		UserInfo: services.NewMockUserInfo(),
	}
	f.Core = services.NewCore(db, logger.NewNop(), services.CoreOptions{
		Clock:    f.Clock,
		Sink:     f.Sink,
		Artwork:  services.NewS3ArtworkStore(f.S3),
		UserInfo: f.UserInfo,
	})

	prevDB, prevCore := config.GetDB(), services.GetCore()
	config.SetDB(db)
	services.SetCore(f.Core)
	t.Cleanup(func() {
		config.SetDB(prevDB)
		services.SetCore(prevCore)
	})
	return f
}
