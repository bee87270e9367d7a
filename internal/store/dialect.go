package store

import "fmt"

// dialect holds the driver-specific SQL. Everything else in the package is
// shared between SQLite and MySQL.
type dialect struct {
	driver string
	schema []string

	// upsertTranscript confirms the affected row through RETURNING when
	// returning is true; otherwise through RowsAffected.
	upsertTranscript string
	returning        bool

	upsertCatalog string
	insertStatus  func(column string) string
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS audio_files (
    file_path TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    local_date TEXT,
    local_time TEXT,
    time_block TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_device_date ON audio_files(device_id, local_date)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_device_recorded ON audio_files(device_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS spot_features (
    device_id TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    local_date TEXT,
    local_time TEXT,
    vibe_transcriber_result TEXT,
    vibe_status TEXT,
    behavior_status TEXT,
    emotion_status TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (device_id, recorded_at)
)`,
	},
	upsertTranscript: `INSERT INTO spot_features(device_id, recorded_at, local_date, local_time, vibe_transcriber_result, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id, recorded_at) DO UPDATE SET
    local_date = COALESCE(excluded.local_date, spot_features.local_date),
    local_time = COALESCE(excluded.local_time, spot_features.local_time),
    vibe_transcriber_result = excluded.vibe_transcriber_result,
    updated_at = excluded.updated_at
RETURNING device_id`,
	returning: true,
	upsertCatalog: `INSERT INTO audio_files(file_path, device_id, recorded_at, local_date, local_time, time_block)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(file_path) DO UPDATE SET
    device_id = excluded.device_id,
    recorded_at = excluded.recorded_at,
    local_date = excluded.local_date,
    local_time = excluded.local_time,
    time_block = excluded.time_block`,
	insertStatus: func(column string) string {
		return fmt.Sprintf(`INSERT INTO spot_features(device_id, recorded_at, %[1]s, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(device_id, recorded_at) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`, column)
	},
}

var mysqlDialect = dialect{
	driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS audio_files (
    file_path VARCHAR(512) NOT NULL PRIMARY KEY,
    device_id VARCHAR(64) NOT NULL,
    recorded_at VARCHAR(32) NOT NULL,
    local_date VARCHAR(10),
    local_time VARCHAR(32),
    time_block VARCHAR(5),
    KEY idx_audio_files_device_date (device_id, local_date),
    KEY idx_audio_files_device_recorded (device_id, recorded_at)
) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS spot_features (
    device_id VARCHAR(64) NOT NULL,
    recorded_at VARCHAR(32) NOT NULL,
    local_date VARCHAR(10),
    local_time VARCHAR(32),
    vibe_transcriber_result TEXT,
    vibe_status VARCHAR(16),
    behavior_status VARCHAR(16),
    emotion_status VARCHAR(16),
    created_at VARCHAR(32) NOT NULL,
    updated_at VARCHAR(32) NOT NULL,
    PRIMARY KEY (device_id, recorded_at)
) DEFAULT CHARSET=utf8mb4`,
	},
	upsertTranscript: `INSERT INTO spot_features(device_id, recorded_at, local_date, local_time, vibe_transcriber_result, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    local_date = COALESCE(VALUES(local_date), local_date),
    local_time = COALESCE(VALUES(local_time), local_time),
    vibe_transcriber_result = VALUES(vibe_transcriber_result),
    updated_at = VALUES(updated_at)`,
	upsertCatalog: `INSERT INTO audio_files(file_path, device_id, recorded_at, local_date, local_time, time_block)
VALUES(?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    device_id = VALUES(device_id),
    recorded_at = VALUES(recorded_at),
    local_date = VALUES(local_date),
    local_time = VALUES(local_time),
    time_block = VALUES(time_block)`,
	insertStatus: func(column string) string {
		return fmt.Sprintf(`INSERT INTO spot_features(device_id, recorded_at, %[1]s, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE %[1]s = VALUES(%[1]s), updated_at = VALUES(updated_at)`, column)
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return sqliteDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}
