package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"igevents/pkg/config"
	"igevents/pkg/logger"
	"igevents/pkg/models"
)

// VenueRow is the MySQL form of a venue.
type VenueRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Status    string `gorm:"type:varchar(32);not null;default:active"`
	CreatedAt time.Time
}

func (VenueRow) TableName() string { return "venues" }

// EventRow is the MySQL form of an event.
type EventRow struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	EventName        string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_events_venue_name_date,priority:2"`
	VenueID          *int64    `gorm:"index"`
	VenueName        string    `gorm:"type:varchar(255);not null;default:'';uniqueIndex:uq_events_venue_name_date,priority:1"`
	EventDate        time.Time `gorm:"type:date;not null;uniqueIndex:uq_events_venue_name_date,priority:3"`
	EventTime        string    `gorm:"type:varchar(8)"`
	EventDatetime    *time.Time
	Location         string `gorm:"type:text"`
	Country          string `gorm:"type:varchar(2);not null;default:KR"`
	Content          string `gorm:"type:text"`
	ImageURL         string `gorm:"type:text"`
	Artists          string `gorm:"type:text"`
	SourceShortcode  string `gorm:"type:varchar(64);index"`
	InstagramLink    string `gorm:"type:text"`
	IsDraft          bool   `gorm:"not null;default:false"`
	Latitude         *float64
	Longitude        *float64
	FormattedAddress string `gorm:"type:text"`
	PlaceID          string `gorm:"type:varchar(255)"`
	CreatedAt        time.Time
}

func (EventRow) TableName() string { return "events" }

// GormEvents implements EventStore on MySQL through gorm.
type GormEvents struct {
	db *gorm.DB
}

func NewGormEvents(db *gorm.DB) *GormEvents {
	return &GormEvents{db: db}
}

// OpenMySQL connects gorm to the events database described by cfg.
func OpenMySQL(cfg config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	mysqlCfg.ParseTime = true
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["charset"] = "utf8mb4"

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.New(gormWriter{log}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return db, nil
}

// gormWriter routes gorm's own log lines into the application logger.
type gormWriter struct{ log logger.Logger }

func (w gormWriter) Printf(format string, args ...any) {
	w.log.WithField("component", "gorm").Warn(fmt.Sprintf(format, args...))
}

// AutoMigrate creates the venue and event tables
func (g *GormEvents) AutoMigrate() error {
	return g.db.AutoMigrate(&VenueRow{}, &EventRow{})
}

func (g *GormEvents) SaveEvent(ctx context.Context, ev models.Event) (bool, error) {
	if err := validateEvent(&ev); err != nil {
		return false, err
	}
	row, err := toEventRow(ev)
	if err != nil {
		return false, err
	}

	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	key := eventKey(ev)
	if res.Error != nil {
		logger.LogPersist("events", key, false, res.Error)
		return false, fmt.Errorf("save event %q on %s: %w", ev.EventName, ev.EventDate, res.Error)
	}
	created := res.RowsAffected > 0
	logger.LogPersist("events", key, created, nil)
	return created, nil
}

func toEventRow(ev models.Event) (EventRow, error) {
	day, err := time.Parse(time.DateOnly, ev.EventDate)
	if err != nil {
		return EventRow{}, fmt.Errorf("%w: bad date %q", ErrInvalidEvent, ev.EventDate)
	}
	row := EventRow{
		EventName:        ev.EventName,
		VenueName:        ev.VenueName,
		EventDate:        day,
		EventTime:        ev.EventTime,
		Location:         ev.Location,
		Country:          ev.Country,
		Content:          ev.Content,
		ImageURL:         ev.ImageURL,
		SourceShortcode:  ev.SourceShortcode,
		InstagramLink:    ev.InstagramLink,
		IsDraft:          ev.IsDraft,
		Latitude:         ev.Latitude,
		Longitude:        ev.Longitude,
		FormattedAddress: ev.FormattedAddress,
		PlaceID:          ev.PlaceID,
	}
	if ev.VenueID > 0 {
		id := ev.VenueID
		row.VenueID = &id
	}
	if !ev.EventDatetime.IsZero() {
		start := ev.EventDatetime
		row.EventDatetime = &start
	}
	if len(ev.Artists) > 0 {
		b, err := json.Marshal(ev.Artists)
		if err != nil {
			return EventRow{}, err
		}
		row.Artists = string(b)
	}
	return row, nil
}

func (g *GormEvents) FindVenueByName(ctx context.Context, name string) (int64, bool, error) {
	var row VenueRow
	err := g.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find venue %q: %w", name, err)
	}
	return row.ID, true, nil
}

func (g *GormEvents) CreateVenue(ctx context.Context, name string) (int64, error) {
	row := VenueRow{Name: name}
	err := g.db.WithContext(ctx).
		Where(VenueRow{Name: name}).
		Attrs(VenueRow{Status: "active"}).
		FirstOrCreate(&row).Error
	if err != nil {
		return 0, fmt.Errorf("create venue %q: %w", name, err)
	}
	return row.ID, nil
}

func (g *GormEvents) ListKnownVenueNames(ctx context.Context) ([]string, error) {
	var names []string
	err := g.db.WithContext(ctx).
		Model(&VenueRow{}).
		Where("status = ?", "active").
		Order("name").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	return names, nil
}
