package netengine

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wippyai/lacewing/engine"
)

// DefaultPurgeSchedule runs the expired session purge every minute.
const DefaultPurgeSchedule = "* * * * *"

// sessionRow is one value of one session. The empty name marks the session
// itself so that sessions exist before their first value.
type sessionRow struct {
	ID        string    `gorm:"primaryKey;size:32"`
	Name      string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text"`
	ExpiresAt time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "lacewing_sessions" }

// SQLStore is a SessionStore persisted through gorm. Expired rows are
// purged on a cron schedule.
type SQLStore struct {
	db       *gorm.DB
	schedule cron.Schedule
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger
	ttl      time.Duration
	once     sync.Once
}

var _ SessionStore = (*SQLStore)(nil)

// OpenSQLStore opens (creating if needed) a SQLite session database.
func OpenSQLStore(path string, ttl time.Duration, purge string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, ttl, purge)
}

// NewSQLStore migrates the session table on db and starts the purge loop.
// An empty purge uses DefaultPurgeSchedule.
func NewSQLStore(db *gorm.DB, ttl time.Duration, purge string) (*SQLStore, error) {
	if purge == "" {
		purge = DefaultPurgeSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(purge)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SQLStore{
		db:       db,
		schedule: schedule,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      engine.Logger(),
		ttl:      ttl,
	}
	go s.purgeLoop(ctx)
	return s, nil
}

func (s *SQLStore) purgeLoop(ctx context.Context) {
	defer close(s.done)
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if n, err := s.Purge(); err != nil {
				s.log.Warn("session purge failed", zap.Error(err))
			} else if n > 0 {
				s.log.Debug("sessions purged", zap.Int64("rows", n))
			}
		}
	}
}

// Purge deletes expired rows and returns how many were removed.
func (s *SQLStore) Purge() (int64, error) {
	res := s.db.Where("expires_at <= ?", time.Now().UTC()).Delete(&sessionRow{})
	return res.RowsAffected, res.Error
}

func (s *SQLStore) Exists(id string) bool {
	if id == "" {
		return false
	}
	var n int64
	s.db.Model(&sessionRow{}).
		Where("id = ? AND name = ? AND expires_at > ?", id, "", time.Now().UTC()).
		Count(&n)
	return n > 0
}

func (s *SQLStore) Get(id, key string) (string, bool) {
	var row sessionRow
	err := s.db.
		Where("id = ? AND name = ? AND expires_at > ?", id, key, time.Now().UTC()).
		Take(&row).Error
	if err != nil {
		return "", false
	}
	return row.Value, true
}

func (s *SQLStore) Set(id, key, value string) error {
	expires := time.Now().UTC().Add(s.ttl)
	return s.db.Transaction(func(tx *gorm.DB) error {
		rows := []sessionRow{{ID: id, ExpiresAt: expires}}
		if key != "" {
			rows = append(rows, sessionRow{ID: id, Name: key, Value: value, ExpiresAt: expires})
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
			return err
		}
		return tx.Model(&sessionRow{}).Where("id = ?", id).Update("expires_at", expires).Error
	})
}

func (s *SQLStore) Delete(id string) error {
	return s.db.Where("id = ?", id).Delete(&sessionRow{}).Error
}

// Close stops the purge loop and closes the database.
func (s *SQLStore) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		sqlDB, dbErr := s.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}
