package constants

import "time"

const (
	RosterCacheTTL = 6 * time.Hour
	// icon map is only reloaded on request
	IconCacheTTL = 0
)

const (
	ExternalAPITimeout = 10 * time.Second
	RebuildTimeout     = 30 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	ConvertTimeout     = 2 * time.Minute
	PeerPushTimeout    = 10 * time.Second
)

const (
	DBMaxOpenConns    = 8
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// sheet rows are 1-based; two header rows precede the data
	HeaderRow      = 2
	FirstDataRow   = 3
	InsertPosition = 3
	// raw rows written by the upload form
	RawRowFields = 18
)

const (
	DefaultDigestSize = 10
	MaxDigestSize     = 100
	SearchMemoSize    = 512
	SearchMemoTTL     = 10 * time.Minute
)
