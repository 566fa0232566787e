package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, phone string) *domain.User {
	t.Helper()
	u, err := repo.GetOrCreateUser(context.Background(), db, phone)
	require.NoError(t, err)
	return u
}

func f64(v float64) *float64 { return &v }

// fakeAgent is a scripted agent.Client. StartRun, GetRun and
// SubmitToolOutputs return the next run of the script; once the script is
// exhausted the run stays in progress.
type fakeAgent struct {
	mu sync.Mutex

	threadSeq   int
	createErr   error
	retrieveErr error
	addErr      error
	startErr    error

	runs    []*agent.Run
	pos     int
	getErrs []error // consumed one per GetRun before the script

	reply    string
	replyErr error

	added     []string
	submitted [][]agent.ToolOutput
	cancelled []string
	specs     []agent.ToolSpec
}

func (f *fakeAgent) next() *agent.Run {
	if f.pos >= len(f.runs) {
		return &agent.Run{ID: "run_1", Status: agent.StatusInProgress}
	}
	r := f.runs[f.pos]
	f.pos++
	return r
}

func (f *fakeAgent) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.threadSeq++
	return fmt.Sprintf("th_%d", f.threadSeq), nil
}

func (f *fakeAgent) RetrieveThread(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return "", f.retrieveErr
	}
	return id, nil
}

func (f *fakeAgent) AddUserMessage(ctx context.Context, threadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, text)
	return nil
}

func (f *fakeAgent) StartRun(ctx context.Context, threadID string, tools []agent.ToolSpec) (*agent.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.specs = tools
	return f.next(), nil
}

func (f *fakeAgent) GetRun(ctx context.Context, threadID, runID string) (*agent.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	return f.next(), nil
}

func (f *fakeAgent) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []agent.ToolOutput) (*agent.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, outputs)
	return f.next(), nil
}

func (f *fakeAgent) CancelRun(ctx context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeAgent) LatestAssistantMessage(ctx context.Context, threadID, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.replyErr
}

func run(status agent.RunStatus, calls ...agent.ToolCall) *agent.Run {
	return &agent.Run{ID: "run_1", ThreadID: "th_1", Status: status, ToolCalls: calls}
}
