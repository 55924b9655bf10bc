// Package store persists per-guild preferences that must survive process
// restarts: the assigned voice channel, the announce channel, the volume
// level, and panel emoji overrides.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// GuildSettings is one guild's persisted row.
type GuildSettings struct {
	GuildID           string
	VoiceChannelID    string
	AnnounceChannelID string
	Volume            int
	EmojiOverrides    map[string]string
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the settings database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{db: db}, nil
}

func initDatabase(db *sql.DB) error {
	createTable := `
	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT PRIMARY KEY,
		voice_channel_id TEXT NOT NULL DEFAULT '',
		announce_channel_id TEXT NOT NULL DEFAULT '',
		volume INTEGER NOT NULL DEFAULT 0,
		emoji_overrides TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(createTable)
	return err
}

// Get returns the guild's settings, or an empty record when none is stored.
func (s *Store) Get(guildID string) (*GuildSettings, error) {
	row := s.db.QueryRow(`
		SELECT voice_channel_id, announce_channel_id, volume, emoji_overrides
		FROM guild_settings WHERE guild_id = ?`, guildID)

	gs := &GuildSettings{GuildID: guildID, EmojiOverrides: map[string]string{}}
	var emojiJSON string
	err := row.Scan(&gs.VoiceChannelID, &gs.AnnounceChannelID, &gs.Volume, &emojiJSON)
	if err == sql.ErrNoRows {
		return gs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guild settings: %w", err)
	}
	if err := json.Unmarshal([]byte(emojiJSON), &gs.EmojiOverrides); err != nil {
		gs.EmojiOverrides = map[string]string{}
	}
	return gs, nil
}

// Save upserts the guild's settings.
func (s *Store) Save(gs *GuildSettings) error {
	emojiJSON, err := json.Marshal(gs.EmojiOverrides)
	if err != nil {
		emojiJSON = []byte("{}")
	}

	_, err = s.db.Exec(`
		INSERT INTO guild_settings (guild_id, voice_channel_id, announce_channel_id, volume, emoji_overrides, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET
			voice_channel_id = excluded.voice_channel_id,
			announce_channel_id = excluded.announce_channel_id,
			volume = excluded.volume,
			emoji_overrides = excluded.emoji_overrides,
			updated_at = CURRENT_TIMESTAMP`,
		gs.GuildID, gs.VoiceChannelID, gs.AnnounceChannelID, gs.Volume, string(emojiJSON))
	if err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

// SetVoiceChannel records the guild's assigned voice endpoint.
func (s *Store) SetVoiceChannel(guildID, channelID string) error {
	gs, err := s.Get(guildID)
	if err != nil {
		return err
	}
	gs.VoiceChannelID = channelID
	return s.Save(gs)
}

// SetAnnounceChannel records where now-playing notices go.
func (s *Store) SetAnnounceChannel(guildID, channelID string) error {
	gs, err := s.Get(guildID)
	if err != nil {
		return err
	}
	gs.AnnounceChannelID = channelID
	return s.Save(gs)
}

// SetVolume records the guild's volume level.
func (s *Store) SetVolume(guildID string, volume int) error {
	gs, err := s.Get(guildID)
	if err != nil {
		return err
	}
	gs.Volume = volume
	return s.Save(gs)
}

// SetEmoji records one panel emoji override.
func (s *Store) SetEmoji(guildID, action, emoji string) error {
	gs, err := s.Get(guildID)
	if err != nil {
		return err
	}
	if gs.EmojiOverrides == nil {
		gs.EmojiOverrides = map[string]string{}
	}
	gs.EmojiOverrides[action] = emoji
	return s.Save(gs)
}

// GuildVolume implements the player.SettingsSource lookup: the persisted
// volume when one was saved, ok=false otherwise.
func (s *Store) GuildVolume(guildID string) (int, bool) {
	gs, err := s.Get(guildID)
	if err != nil || gs.Volume <= 0 {
		return 0, false
	}
	return gs.Volume, true
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
