package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mkendall/whosaidit/internal/models"
)

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			code TEXT PRIMARY KEY,
			host_device TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'lobby',
			category_pool TEXT,
			round_counter INTEGER NOT NULL DEFAULT 0,
			chameleon_scores TEXT,
			crowd_scores TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_code TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			connected BOOLEAN NOT NULL DEFAULT 1,
			categories TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (room_code) REFERENCES rooms(code)
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_code TEXT NOT NULL,
			category TEXT NOT NULL,
			prompt TEXT NOT NULL,
			owner_player_id INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT 'submitting',
			submit_deadline DATETIME NOT NULL,
			vote_deadline DATETIME,
			reveal_order TEXT,
			results TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (room_code) REFERENCES rooms(code),
			FOREIGN KEY (owner_player_id) REFERENCES players(id)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (round_id) REFERENCES rounds(id),
			FOREIGN KEY (player_id) REFERENCES players(id)
		)`,
		`CREATE TABLE IF NOT EXISTS guesses (
			round_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			submission_id INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (round_id) REFERENCES rounds(id),
			FOREIGN KEY (player_id) REFERENCES players(id),
			FOREIGN KEY (submission_id) REFERENCES submissions(id),
			UNIQUE(round_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			submission_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (round_id) REFERENCES rounds(id),
			FOREIGN KEY (player_id) REFERENCES players(id),
			FOREIGN KEY (submission_id) REFERENCES submissions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_room ON players(room_code)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_room ON rounds(room_code)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_round ON submissions(round_id)`,
		`CREATE INDEX IF NOT EXISTS idx_guesses_round ON guesses(round_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_round ON votes(round_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_player ON votes(round_id, player_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

// marshalJSON encodes a value as a nullable JSON column
func marshalJSON(v interface{}) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

// ==================== Room Methods ====================

// CreateRoom inserts a new room in lobby status
func (r *Repository) CreateRoom(ctx context.Context, code, hostDevice string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (code, host_device, status, round_counter, created_at)
		VALUES (?, ?, 'lobby', 0, ?)
	`, code, hostDevice, time.Now())
	return err
}

// RoomExists checks if a room with the given code exists
func (r *Repository) RoomExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE code = ?)`, code).Scan(&exists)
	return exists, err
}

// GetRoom retrieves a room by code
func (r *Repository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	var pool, chameleon, crowd sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT code, host_device, status, category_pool, round_counter,
		       chameleon_scores, crowd_scores, created_at
		FROM rooms WHERE code = ?
	`, code).Scan(&room.Code, &room.HostDevice, &room.Status, &pool, &room.RoundCounter,
		&chameleon, &crowd, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if pool.Valid && pool.String != "" {
		if err := json.Unmarshal([]byte(pool.String), &room.CategoryPool); err != nil {
			return nil, err
		}
	}
	room.ChameleonScores = make(map[int64]int)
	if chameleon.Valid && chameleon.String != "" {
		if err := json.Unmarshal([]byte(chameleon.String), &room.ChameleonScores); err != nil {
			return nil, err
		}
	}
	room.CrowdScores = make(map[int64]int)
	if crowd.Valid && crowd.String != "" {
		if err := json.Unmarshal([]byte(crowd.String), &room.CrowdScores); err != nil {
			return nil, err
		}
	}
	return &room, nil
}

// UpdateRoomStatus flips a room's status only when it currently holds the
// expected status. Reports whether this caller performed the transition.
func (r *Repository) UpdateRoomStatus(ctx context.Context, code string, from, to models.RoomStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = ? WHERE code = ? AND status = ?`, to, code, from)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// SetRoomStatus updates a room's status unconditionally
func (r *Repository) SetRoomStatus(ctx context.Context, code string, status models.RoomStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE code = ?`, status, code)
	return err
}

// SetCategoryPool replaces the room's agreed category pool
func (r *Repository) SetCategoryPool(ctx context.Context, code string, pool []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET category_pool = ? WHERE code = ?`, marshalJSON(pool), code)
	return err
}

// SetLeaderboards writes both score maps for a room
func (r *Repository) SetLeaderboards(ctx context.Context, code string, chameleon, crowd map[int64]int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET chameleon_scores = ?, crowd_scores = ? WHERE code = ?`,
		marshalJSON(chameleon), marshalJSON(crowd), code)
	return err
}

// IncrementRoundCounter bumps the monotonic counter that rotates round ownership
func (r *Repository) IncrementRoundCounter(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET round_counter = round_counter + 1 WHERE code = ?`, code)
	return err
}

// ==================== Player Methods ====================

// CreatePlayer inserts a connected player into a room
func (r *Repository) CreatePlayer(ctx context.Context, roomCode, name, color string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO players (room_code, name, color, connected, created_at)
		VALUES (?, ?, ?, 1, ?)
	`, roomCode, name, color, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetPlayer retrieves a player by id
func (r *Repository) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	var player models.Player
	var categories sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, room_code, name, color, connected, categories
		FROM players WHERE id = ?
	`, id).Scan(&player.ID, &player.RoomCode, &player.Name, &player.Color, &player.Connected, &categories)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &player.Categories); err != nil {
			return nil, err
		}
	}
	return &player, nil
}

// ListPlayers returns all players in a room sorted by name, case-insensitively
func (r *Repository) ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_code, name, color, connected, categories
		FROM players WHERE room_code = ?
		ORDER BY name COLLATE NOCASE
	`, roomCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var player models.Player
		var categories sql.NullString
		if err := rows.Scan(&player.ID, &player.RoomCode, &player.Name, &player.Color,
			&player.Connected, &categories); err != nil {
			return nil, err
		}
		if categories.Valid && categories.String != "" {
			if err := json.Unmarshal([]byte(categories.String), &player.Categories); err != nil {
				return nil, err
			}
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

// CountConnectedPlayers returns the number of currently-connected players in a room
func (r *Repository) CountConnectedPlayers(ctx context.Context, roomCode string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM players WHERE room_code = ? AND connected = 1`, roomCode).Scan(&count)
	return count, err
}

// ColorTaken checks whether a color is held by a connected player in the room.
// Disconnected players release their color.
func (r *Repository) ColorTaken(ctx context.Context, roomCode, color string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM players WHERE room_code = ? AND color = ? AND connected = 1)`,
		roomCode, color).Scan(&taken)
	return taken, err
}

// SetPlayerConnected updates a player's connectivity flag
func (r *Repository) SetPlayerConnected(ctx context.Context, id int64, connected bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE players SET connected = ? WHERE id = ?`, connected, id)
	return err
}

// SetPlayerCategories replaces a player's selected category set
func (r *Repository) SetPlayerCategories(ctx context.Context, id int64, categories []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET categories = ? WHERE id = ?`, marshalJSON(categories), id)
	return err
}

// ==================== Round Methods ====================

// CreateRound inserts a new round in submitting phase
func (r *Repository) CreateRound(ctx context.Context, round *models.Round) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO rounds (room_code, category, prompt, owner_player_id, phase, submit_deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, round.RoomCode, round.Category, round.Prompt, round.OwnerPlayerID,
		models.PhaseSubmitting, round.SubmitDeadline, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// scanRound scans a round row from any row scanner
func scanRound(scan func(dest ...interface{}) error) (*models.Round, error) {
	var round models.Round
	var voteDeadline sql.NullTime
	var revealOrder, results sql.NullString
	err := scan(&round.ID, &round.RoomCode, &round.Category, &round.Prompt,
		&round.OwnerPlayerID, &round.Phase, &round.SubmitDeadline,
		&voteDeadline, &revealOrder, &results)
	if err != nil {
		return nil, err
	}
	if voteDeadline.Valid {
		t := voteDeadline.Time
		round.VoteDeadline = &t
	}
	if revealOrder.Valid && revealOrder.String != "" {
		if err := json.Unmarshal([]byte(revealOrder.String), &round.RevealOrder); err != nil {
			return nil, err
		}
	}
	if results.Valid && results.String != "" {
		round.Results = &models.RoundResults{}
		if err := json.Unmarshal([]byte(results.String), round.Results); err != nil {
			return nil, err
		}
	}
	return &round, nil
}

const roundColumns = `id, room_code, category, prompt, owner_player_id, phase,
	submit_deadline, vote_deadline, reveal_order, results`

// GetRound retrieves a round by id
func (r *Repository) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id)
	round, err := scanRound(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return round, err
}

// CurrentRound returns the most recently created round for a room
func (r *Repository) CurrentRound(ctx context.Context, roomCode string) (*models.Round, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE room_code = ? ORDER BY id DESC LIMIT 1`, roomCode)
	round, err := scanRound(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return round, err
}

// SetRevealOrder writes the reveal permutation and opens the vote window, but
// only if no permutation has been stored yet. The conditional update is the
// single-writer guard: concurrent reveal attempts converge on one stored
// permutation and only the winner reports true.
func (r *Repository) SetRevealOrder(ctx context.Context, roundID int64, order []int64, voteDeadline time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE rounds SET reveal_order = ?, phase = ?, vote_deadline = ?
		WHERE id = ? AND reveal_order IS NULL
	`, marshalJSON(order), models.PhaseVoting, voteDeadline, roundID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ClaimFinalize moves a round from voting to finalized. Only one caller ever
// wins the claim; losers must read the stored results instead of recomputing.
func (r *Repository) ClaimFinalize(ctx context.Context, roundID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rounds SET phase = ? WHERE id = ? AND phase = ?`,
		models.PhaseFinalized, roundID, models.PhaseVoting)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ReopenVoting releases a finalize claim whose follow-up writes failed,
// clearing any stored results so the next finalize recomputes them
func (r *Repository) ReopenVoting(ctx context.Context, roundID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rounds SET phase = ?, results = NULL WHERE id = ? AND phase = ?`,
		models.PhaseVoting, roundID, models.PhaseFinalized)
	return err
}

// SetRoundResults stores the computed results for a round
func (r *Repository) SetRoundResults(ctx context.Context, roundID int64, results *models.RoundResults) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rounds SET results = ? WHERE id = ?`, marshalJSON(results), roundID)
	return err
}

// ==================== Submission Methods ====================

// CreateSubmission inserts a player's answer for a round
func (r *Repository) CreateSubmission(ctx context.Context, roundID, playerID int64, text string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO submissions (round_id, player_id, text, created_at)
		VALUES (?, ?, ?, ?)
	`, roundID, playerID, text, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListSubmissions returns all submissions for a round in insertion order
func (r *Repository) ListSubmissions(ctx context.Context, roundID int64) ([]models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, round_id, player_id, text FROM submissions
		WHERE round_id = ? ORDER BY id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		var sub models.Submission
		if err := rows.Scan(&sub.ID, &sub.RoundID, &sub.PlayerID, &sub.Text); err != nil {
			return nil, err
		}
		submissions = append(submissions, sub)
	}
	return submissions, rows.Err()
}

// CountSubmissions returns the number of submissions in a round
func (r *Repository) CountSubmissions(ctx context.Context, roundID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE round_id = ?`, roundID).Scan(&count)
	return count, err
}

// ==================== Guess Methods ====================

// UpsertGuess saves a player's guess, replacing any prior guess for the round.
// The storage-level upsert removes the delete-then-insert race window.
func (r *Repository) UpsertGuess(ctx context.Context, roundID, playerID, submissionID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guesses (round_id, player_id, submission_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(round_id, player_id) DO UPDATE SET
			submission_id = excluded.submission_id,
			updated_at = excluded.updated_at
	`, roundID, playerID, submissionID, time.Now())
	return err
}

// ListGuesses returns all guesses for a round
func (r *Repository) ListGuesses(ctx context.Context, roundID int64) ([]models.Guess, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT round_id, player_id, submission_id FROM guesses WHERE round_id = ?`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guesses []models.Guess
	for rows.Next() {
		var g models.Guess
		if err := rows.Scan(&g.RoundID, &g.PlayerID, &g.SubmissionID); err != nil {
			return nil, err
		}
		guesses = append(guesses, g)
	}
	return guesses, rows.Err()
}

// ==================== Vote Methods ====================

// ReplaceVotes swaps out a player's entire vote set for a round inside a
// transaction, so readers never observe a half-replaced set.
func (r *Repository) ReplaceVotes(ctx context.Context, roundID, playerID int64, submissionIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE round_id = ? AND player_id = ?`, roundID, playerID); err != nil {
		return err
	}

	now := time.Now()
	for _, submissionID := range submissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (round_id, player_id, submission_id, created_at)
			VALUES (?, ?, ?, ?)
		`, roundID, playerID, submissionID, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListVotes returns all votes for a round
func (r *Repository) ListVotes(ctx context.Context, roundID int64) ([]models.Vote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, round_id, player_id, submission_id FROM votes WHERE round_id = ?`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.RoundID, &v.PlayerID, &v.SubmissionID); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
