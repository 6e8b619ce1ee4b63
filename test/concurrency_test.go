package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"gasopper/access"
	"gasopper/lead"
	"gasopper/opportunity"
	"gasopper/station"
	"gasopper/test/actors"
	"gasopper/test/infra"
	"gasopper/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run the station churn phase")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent converters and churners")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestPipelineConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+120*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("GASOPPER_TEST_PG_DSN") != "":
		dsn = os.Getenv("GASOPPER_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no Docker and no local PostgreSQL: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	leadRepo := lead.NewRepository(pool)
	oppRepo := opportunity.NewRepository(pool)
	stationRepo := station.NewRepository(pool)
	policy := access.NewPolicy(seedData.directory(pool))

	leadService := lead.NewService(pool, leadRepo, oppRepo, policy)
	oppService := opportunity.NewService(pool, oppRepo, stationRepo, policy)

	owner := access.Actor{ID: seedData.salesA, Role: access.RoleSalesperson}
	manager := access.Actor{ID: seedData.manager, Role: access.RoleManager}
	admin := access.Actor{ID: seedData.admin, Role: access.RoleAdmin}

	// Phase 1: every converter races on the same lead; exactly one must win.
	var wins atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			won, err := actors.ConvertOnce(gctx, leadService, owner, seedData.leadID, lead.ConvertParams{
				OwnerName:    "Acme",
				OwnerAddress: "1 Main St",
			})
			if won {
				wins.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("converters errored (seed=%d): %v", seed, err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one conversion winner, got %d (seed=%d)", got, seed)
	}

	converted, err := leadService.Get(ctx, admin, seedData.leadID)
	if err != nil {
		t.Fatalf("reload converted lead: %v", err)
	}
	if converted.StatusID != lead.StatusConverted || converted.OpportunityID == nil {
		t.Fatalf("lead not converted cleanly: %+v", converted)
	}
	oppID := *converted.OpportunityID

	// Phase 2: churners, a reassigner, and a reader hammer the opportunity.
	stop := make(chan struct{})
	g, gctx = errgroup.WithContext(ctx)
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.StationChurn(gctx, oppService, manager, oppID, stop) })
	}
	g.Go(func() error {
		return actors.Reassigner(gctx, oppService, manager, oppID, []int{seedData.salesA, seedData.salesB}, stop)
	})
	g.Go(func() error { return actors.Reader(gctx, oppService, admin, oppID, stop) })

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			t.Fatalf("context expired before the churn phase finished")
		case <-gctx.Done():
			// An actor failed; fall through to g.Wait for the error.
			deadline = time.Now()
		case <-ticker.C:
			name, row, err := oracles.Run(ctx, pool)
			if err != nil {
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				t.Fatalf("oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("actors errored (seed=%d): %v", seed, err)
	}

	// Final pass: the quiesced state must satisfy every invariant, and a
	// redundant recomputation must not change the status.
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		t.Fatalf("final oracle error: %v", err)
	}
	if name != "" {
		t.Fatalf("final oracle %s failed. First row: %s (seed=%d)", name, row, seed)
	}

	before, err := oppService.Get(ctx, admin, oppID)
	if err != nil {
		t.Fatalf("reload opportunity: %v", err)
	}
	status, err := oppService.Recompute(ctx, oppID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if status != before.StatusID {
		t.Fatalf("recompute changed a settled status: %v -> %v", before.StatusID, status)
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	admin   int
	manager int
	salesA  int
	salesB  int
	leadID  int
}

// directory returns the live hierarchy lookups the access policy needs,
// backed by the seeded users table.
func (s seedIDs) directory(pool *pgxpool.Pool) access.Directory {
	return poolDirectory{pool: pool}
}

type poolDirectory struct {
	pool *pgxpool.Pool
}

func (d poolDirectory) ManagerID(ctx context.Context, userID int) (*int, error) {
	var managerID *int
	err := d.pool.QueryRow(ctx, `SELECT manager_id FROM users WHERE user_id = $1`, userID).Scan(&managerID)
	if err != nil {
		return nil, nil
	}
	return managerID, nil
}

func (d poolDirectory) ActiveTeamIDs(ctx context.Context, managerID int) ([]int, error) {
	rows, err := d.pool.Query(ctx, `SELECT user_id FROM users WHERE manager_id = $1 AND is_active`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("seed-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("seed hash: %v", err)
	}

	var s seedIDs
	insertUser := func(employeeID, email string, role access.Role, managerID *int) int {
		t.Helper()
		var id int
		err := pool.QueryRow(ctx, `
			INSERT INTO users (employee_id, email, first_name, last_name, role_id, manager_id, password_hash, is_active)
			VALUES ($1, $2, 'Seed', 'User', $3, $4, $5, TRUE)
			RETURNING user_id`,
			employeeID, email, role, managerID, string(hash)).Scan(&id)
		if err != nil {
			t.Fatalf("seed user %s: %v", email, err)
		}
		return id
	}

	suffix := rand.Int63()
	s.admin = insertUser(fmt.Sprintf("EA%d", suffix), fmt.Sprintf("admin%d@gasopper.test", suffix), access.RoleAdmin, nil)
	s.manager = insertUser(fmt.Sprintf("EM%d", suffix), fmt.Sprintf("mgr%d@gasopper.test", suffix), access.RoleManager, nil)
	s.salesA = insertUser(fmt.Sprintf("ESA%d", suffix), fmt.Sprintf("salesa%d@gasopper.test", suffix), access.RoleSalesperson, &s.manager)
	s.salesB = insertUser(fmt.Sprintf("ESB%d", suffix), fmt.Sprintf("salesb%d@gasopper.test", suffix), access.RoleSalesperson, &s.manager)

	err = pool.QueryRow(ctx, `
		INSERT INTO leads (name, phone_number, email, address, status_id, assigned_to, created_by)
		VALUES ('Acme Fuel', '555-0100', 'owner@acme.test', '1 Main St', 1, $1, $1)
		RETURNING lead_id`, s.salesA).Scan(&s.leadID)
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return s
}
