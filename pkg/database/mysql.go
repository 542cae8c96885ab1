package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

var _ game.Store = (*MySQLDB)(nil)

type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string, debug bool) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Info().Msg("running database migrations")

	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Player{},
		&models.Track{},
		&models.Vote{},
	)
}

func (db *MySQLDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// User operations
func (db *MySQLDB) CreateUser(ctx context.Context, user *models.User) error {
	return db.WithContext(ctx).Save(user).Error
}

func (db *MySQLDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (db *MySQLDB) GetUserBySpotifyID(ctx context.Context, spotifyID string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "spotify_id = ?", spotifyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Room operations
func (db *MySQLDB) CreateRoom(ctx context.Context, room *models.Room) error {
	return db.WithContext(ctx).Create(room).Error
}

func (db *MySQLDB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (db *MySQLDB) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// UpdateRoomState overwrites every state column so zero values are written too.
func (db *MySQLDB) UpdateRoomState(ctx context.Context, roomID string, state models.RoomState) error {
	return db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(stateColumns(state)).Error
}

func stateColumns(state models.RoomState) map[string]interface{} {
	return map[string]interface{}{
		"state_started":          state.Started,
		"state_finished":         state.Finished,
		"state_current_round":    state.CurrentRound,
		"state_current_phase":    state.CurrentPhase,
		"state_phase_start_time": state.PhaseStartTime,
		"state_phase_end_time":   state.PhaseEndTime,
	}
}

// Player operations
func (db *MySQLDB) AddPlayer(ctx context.Context, player *models.Player) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(player)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).
		First(player, "room_id = ? AND user_id = ?", player.RoomID, player.UserID).Error; err != nil {
		return false, err
	}
	return false, nil
}

func (db *MySQLDB) GetPlayers(ctx context.Context, roomID string) ([]models.Player, error) {
	var players []models.Player
	if err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func (db *MySQLDB) UpdatePlayerScore(ctx context.Context, roomID, userID string, score int) error {
	return db.WithContext(ctx).
		Model(&models.Player{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("score", score).Error
}

// Track operations
func (db *MySQLDB) GetTracks(ctx context.Context, roomID string) ([]models.Track, error) {
	var tracks []models.Track
	if err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("track_order ASC").
		Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

func (db *MySQLDB) ReplaceTracks(ctx context.Context, roomID string, tracks []models.Track) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Track{}).Error; err != nil {
			return err
		}
		if len(tracks) == 0 {
			return nil
		}
		rows := make([]models.Track, len(tracks))
		for i, t := range tracks {
			t.RoomID = roomID
			rows[i] = t
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// Vote operations

// CreateVote relies on the primary key: a second insert for the same
// (room, round, voter) key affects no rows and leaves the first entry intact.
func (db *MySQLDB) CreateVote(ctx context.Context, vote *models.Vote) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(vote)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (db *MySQLDB) GetVote(ctx context.Context, key string) (*models.Vote, error) {
	var vote models.Vote
	if err := db.WithContext(ctx).First(&vote, "`key` = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}

func (db *MySQLDB) GetVotesForRound(ctx context.Context, roomID string, round int) ([]models.Vote, error) {
	var votes []models.Vote
	if err := db.WithContext(ctx).
		Where("room_id = ? AND round = ?", roomID, round).
		Order("created_at ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

func (db *MySQLDB) GetVotes(ctx context.Context, roomID string) ([]models.Vote, error) {
	var votes []models.Vote
	if err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("round ASC, created_at ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

func (db *MySQLDB) ResetRoom(ctx context.Context, roomID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("failed to delete votes: %w", err)
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Track{}).Error; err != nil {
			return fmt.Errorf("failed to delete tracks: %w", err)
		}
		if err := tx.Model(&models.Player{}).Where("room_id = ?", roomID).Update("score", 0).Error; err != nil {
			return fmt.Errorf("failed to reset scores: %w", err)
		}
		res := tx.Model(&models.Room{}).Where("id = ?", roomID).Updates(stateColumns(models.RoomState{}))
		if res.Error != nil {
			return fmt.Errorf("failed to reset room state: %w", res.Error)
		}
		return nil
	})
}
