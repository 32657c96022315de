package config

import (
	"fmt"
	"time"

	"battlelog-tracker/internal/constants"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	SheetsAPIToken string `env:"SHEETS_API_TOKEN,required,notEmpty"`
	SheetsBaseURL  string `env:"SHEETS_BASE_URL" envDefault:"https://sheets.googleapis.com"`

	// raw uploads are inserted here before conversion
	BattleLogSheetID string `env:"BATTLELOG_SHEET_ID,required,notEmpty"`
	// converted logs of the current season, both origins
	OutputSheetID string `env:"OUTPUT_SHEET_ID,required,notEmpty"`
	// rosters and icon map
	CharDataSheetID string `env:"CHARDATA_SHEET_ID,required,notEmpty"`
	// spreadsheets holding past seasons, season:id pairs
	SeasonSheetIDs map[string]string `env:"SEASON_SHEET_IDS" envKeyValSeparator:":"`
	CurrentSeason  string            `env:"CURRENT_SEASON" envDefault:"current"`

	RawSheet     string `env:"RAW_SHEET" envDefault:"戦闘ログ"`
	OutputSheet  string `env:"OUTPUT_SHEET" envDefault:"出力結果"`
	ImportSheet  string `env:"IMPORT_SHEET" envDefault:"一般版から転送"`
	StrikerSheet string `env:"STRIKER_SHEET" envDefault:"STRIKER"`
	SpecialSheet string `env:"SPECIAL_SHEET" envDefault:"SPECIAL"`
	IconSheet    string `env:"ICON_SHEET" envDefault:"その他アイコン"`

	SnapshotDriver string `env:"SNAPSHOT_DRIVER" envDefault:"sqlite"`
	DBPath         string `env:"DB_PATH" envDefault:"battlelog.db"`
	BoltPath       string `env:"BOLT_PATH" envDefault:"battlelog.bolt"`

	ServerPort string        `env:"PORT" envDefault:"8080"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
	RosterTTL  time.Duration `env:"ROSTER_TTL"`

	ConvertCommand []string      `env:"CONVERT_COMMAND" envSeparator:" "`
	ConvertTimeout time.Duration `env:"CONVERT_TIMEOUT" envDefault:"2m"`

	PeerURL   string `env:"PEER_URL"`
	PeerToken string `env:"PEER_TOKEN"`
}

const (
	SnapshotDriverSQLite = "sqlite"
	SnapshotDriverBolt   = "bolt"
)

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("current_season", cfg.CurrentSeason).
		Int("past_seasons", len(cfg.SeasonSheetIDs)).
		Str("snapshot_driver", cfg.SnapshotDriver).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("roster_ttl", cfg.RosterTTL).
		Bool("peer_configured", cfg.PeerURL != "").
		Msg("configuration loaded")

	return cfg, nil
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	if cfg.RosterTTL == 0 {
		cfg.RosterTTL = constants.RosterCacheTTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.SnapshotDriver {
	case SnapshotDriverSQLite, SnapshotDriverBolt:
	default:
		return fmt.Errorf("SNAPSHOT_DRIVER must be %q or %q, got %q", SnapshotDriverSQLite, SnapshotDriverBolt, c.SnapshotDriver)
	}
	if c.CurrentSeason == "" {
		return fmt.Errorf("CURRENT_SEASON must not be empty")
	}
	if c.RosterTTL <= 0 {
		return fmt.Errorf("ROSTER_TTL must be positive, got %s", c.RosterTTL)
	}
	return nil
}

// SpreadsheetFor returns the converted-log spreadsheet of season.
func (c *Config) SpreadsheetFor(season string) (string, bool) {
	if season == "" || season == c.CurrentSeason {
		return c.OutputSheetID, true
	}
	id, ok := c.SeasonSheetIDs[season]
	return id, ok
}

var Module = fx.Provide(Load)
