package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cbodonnell/quicksave/pkg/auth"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/jackc/pgx/v5"
)

const reachabilityProbeTimeout = 3 * time.Second

var _ SaveClient = &PostgresSaveClient{}

type PostgresSaveClient struct {
	// lock serializes access to conn, which is not safe for
	// concurrent use
	lock sync.Mutex
	conn *pgx.Conn
	// onlineSignal is the platform's online/offline hint, consulted
	// before spending a round trip on the ping
	onlineSignal func() bool
}

type NewPostgresSaveClientOptions struct {
	ConnStr      string
	Migrations   string
	OnlineSignal func() bool
}

func NewPostgresSaveClient(ctx context.Context, opts NewPostgresSaveClientOptions) (*PostgresSaveClient, error) {
	if opts.ConnStr == "" {
		return nil, &ConfigurationError{Reason: "no database connection string"}
	}

	conn, err := pgx.Connect(ctx, opts.ConnStr)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("failed to connect to database: %v", err)}
	}

	client := &PostgresSaveClient{
		conn:         conn,
		onlineSignal: opts.OnlineSignal,
	}

	if opts.Migrations != "" {
		if err := client.migrate(ctx, opts.Migrations); err != nil {
			return nil, err
		}
	}

	return client, nil
}

func (c *PostgresSaveClient) migrate(ctx context.Context, migrations string) error {
	dir, err := os.ReadDir(migrations)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := c.conn.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return nil
}

func (c *PostgresSaveClient) Close(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn.Close(ctx)
}

func (c *PostgresSaveClient) Push(ctx context.Context, user auth.UserIdentity, snapshot *savetypes.SaveSnapshot) error {
	if user.UID == "" {
		return &AuthError{Reason: "no user identity"}
	}

	overrides, err := json.Marshal(snapshot.ConfigOverrides)
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("failed to marshal config overrides: %v", err)}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	q := `
	INSERT INTO saves (user_id, saved_at, version, game_state, config_overrides)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET saved_at = $2, version = $3, game_state = $4, config_overrides = $5;
	`
	if _, err := c.conn.Exec(ctx, q, user.UID, snapshot.SavedAt, snapshot.Version, []byte(snapshot.GameState), overrides); err != nil {
		return &NetworkError{Err: fmt.Errorf("failed to upsert save: %v", err)}
	}

	return nil
}

func (c *PostgresSaveClient) Pull(ctx context.Context, user auth.UserIdentity) (*savetypes.SaveSnapshot, error) {
	if user.UID == "" {
		return nil, &AuthError{Reason: "no user identity"}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	q := `
	SELECT saved_at, version, game_state, config_overrides FROM saves WHERE user_id = $1;
	`
	var savedAt int64
	var version int
	var gameState []byte
	var overrides []byte
	if err := c.conn.QueryRow(ctx, q, user.UID).Scan(&savedAt, &version, &gameState, &overrides); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &NotFoundError{}
		}
		return nil, &NetworkError{Err: fmt.Errorf("failed to scan save: %v", err)}
	}

	snapshot := &savetypes.SaveSnapshot{
		Version:   version,
		SavedAt:   savedAt,
		GameState: gameState,
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &snapshot.ConfigOverrides); err != nil {
			return nil, &NetworkError{Err: fmt.Errorf("failed to unmarshal config overrides: %v", err)}
		}
	}

	return snapshot, nil
}

func (c *PostgresSaveClient) Info(ctx context.Context, user auth.UserIdentity) (*savetypes.RemoteSaveInfo, error) {
	if user.UID == "" {
		return nil, &AuthError{Reason: "no user identity"}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	q := `
	SELECT saved_at, version FROM saves WHERE user_id = $1;
	`
	var savedAt int64
	var version int
	if err := c.conn.QueryRow(ctx, q, user.UID).Scan(&savedAt, &version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, &NetworkError{Err: fmt.Errorf("failed to scan save info: %v", err)}
	}

	return &savetypes.RemoteSaveInfo{
		SavedAt: savedAt,
		Version: version,
	}, nil
}

func (c *PostgresSaveClient) Delete(ctx context.Context, user auth.UserIdentity) error {
	if user.UID == "" {
		return &AuthError{Reason: "no user identity"}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	q := `
	DELETE FROM saves WHERE user_id = $1;
	`
	if _, err := c.conn.Exec(ctx, q, user.UID); err != nil {
		return &NetworkError{Err: fmt.Errorf("failed to delete save: %v", err)}
	}

	return nil
}

func (c *PostgresSaveClient) IsReachable(ctx context.Context) bool {
	if c.onlineSignal != nil && !c.onlineSignal() {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, reachabilityProbeTimeout)
	defer cancel()

	c.lock.Lock()
	defer c.lock.Unlock()

	return c.conn.Ping(pingCtx) == nil
}
