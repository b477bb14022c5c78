package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
	"groundstation-safety/internal/alarms/infrastructure/journal"
	alarmnotify "groundstation-safety/internal/alarms/notify"
	commandsapp "groundstation-safety/internal/commands/application"
	commands "groundstation-safety/internal/commands/domain"
	telemetryapp "groundstation-safety/internal/telemetry/application"
	"groundstation-safety/internal/telemetry/infrastructure/properties"
)

type vehicleLink struct {
	mu   sync.Mutex
	sent []commands.Command
}

func (l *vehicleLink) Publish(_ context.Context, cmd commands.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *vehicleLink) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.sent))
	for _, cmd := range l.sent {
		out = append(out, cmd.Name)
	}
	return out
}

func openJournal(t *testing.T) (*sql.DB, *journal.Repository) {
	t.Helper()
	driver, dsn := "sqlite", "file:"+filepath.Join(t.TempDir(), "journal.db")+"?_pragma=busy_timeout(5000)"
	if pg := os.Getenv("PG_DSN"); pg != "" {
		driver, dsn = "pgx", pg
	}
	db, driver, err := journal.Open(driver, dsn)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if driver == journal.DriverPostgres {
		_, _ = db.Exec("DELETE FROM notification_journal")
	}
	repo, err := journal.NewRepository(db, driver, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("journal repo: %v", err)
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("journal schema: %v", err)
	}
	return db, repo
}

func journalEntry(t *testing.T, repo *journal.Repository, condition string) journal.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := repo.List(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 100)
		if err != nil {
			t.Fatalf("list journal: %v", err)
		}
		for _, entry := range entries {
			if entry.Condition == condition {
				return entry
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no journal entry for %s in %d entries", condition, len(entries))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEscalationClosedLoop(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	_, repo := openJournal(t)

	catalog := properties.Default()
	store := telemetryapp.NewSignalStore(catalog.Defaults())
	link := &vehicleLink{}
	service, err := commandsapp.NewService(link, commandsapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("command service: %v", err)
	}
	journalAsync, err := alarmnotify.NewAsyncNotifier(repo, 64, logger)
	if err != nil {
		t.Fatalf("async journal: %v", err)
	}
	defer journalAsync.Close()

	engine, err := alarmapp.NewEngine(store, catalog.Table(), journalAsync, service, catalog,
		alarmapp.WithLogger(logger),
		alarmapp.WithDismissListener(repo),
	)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	store.Update(alarmapp.SignalFSMState, 7, 1)
	for _, p := range []float64{40, 28, 15, 9} {
		store.Update(alarmapp.SignalBrakePressure, p, 2)
	}

	critical := journalEntry(t, repo, "brake.critical")
	if critical.Severity != alarms.SeverityCritical || critical.Dismissable {
		t.Fatalf("unexpected critical entry %+v", critical)
	}
	if names := link.names(); len(names) != 1 || names[0] != "EmergencyBrake" {
		t.Fatalf("expected one EmergencyBrake command on the link, got %v", names)
	}
	recent := service.Recent()
	if len(recent) != 1 || recent[0].Status != commands.StatusSent || recent[0].Origin != commands.OriginEngine {
		t.Fatalf("unexpected command history %+v", recent)
	}
	if err := engine.Dismiss(ctx, critical.ID); !errors.Is(err, alarms.ErrNotDismissable) {
		t.Fatalf("expected ErrNotDismissable, got %v", err)
	}

	store.Update("TempMotorLeft2", 61, 3)
	warning := journalEntry(t, repo, "temperature.motor_left")
	if err := engine.Dismiss(ctx, warning.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if engine.IsOpen(warning.ID) {
		t.Fatalf("dismissed notification still open")
	}
	dismissed := journalEntry(t, repo, "temperature.motor_left")
	if dismissed.DismissedAt == nil {
		t.Fatalf("expected dismissal recorded in journal")
	}
}
