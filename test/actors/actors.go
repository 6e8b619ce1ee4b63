package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gasopper/access"
	"gasopper/lead"
	"gasopper/opportunity"
	"gasopper/station"
)

// ConvertOnce races one conversion attempt against the other actors and
// reports whether it won. Losing to an earlier conversion is the expected
// outcome for all but one caller.
func ConvertOnce(ctx context.Context, svc *lead.Service, actor access.Actor, leadID int, params lead.ConvertParams) (bool, error) {
	_, err := svc.Convert(ctx, actor, leadID, params)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, lead.ErrAlreadyConverted) {
		return false, nil
	}
	return false, fmt.Errorf("convert lead %d: %w", leadID, err)
}

// StationChurn cycles stations through create, complete, delete until stop
// closes. Every mutation forces a status recomputation on the opportunity, so
// concurrent churners exercise the lock ordering.
func StationChurn(ctx context.Context, svc *opportunity.Service, actor access.Actor, oppID int, stop <-chan struct{}) error {
	pocName := "Churn POC"
	pocPhone := "555-0000"
	employees := 3
	typeID := 1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		// Created without pumps, so the opportunity must read Active.
		created, err := svc.CreateStation(ctx, actor, oppID, station.CreateParams{
			Name:      fmt.Sprintf("Churn Site %d", rand.Int63()),
			Address:   "1 Churn Rd",
			POCName:   &pocName,
			POCPhone:  &pocPhone,
			Employees: &employees,
			TypeID:    &typeID,
		})
		if err != nil {
			return fmt.Errorf("churn create: %w", err)
		}

		pumps := 2 + rand.Intn(10)
		if _, err := svc.UpdateStation(ctx, actor, created.ID, station.UpdateParams{Pumps: &pumps}); err != nil {
			return fmt.Errorf("churn complete: %w", err)
		}

		if err := svc.DeleteStation(ctx, actor, created.ID); err != nil {
			return fmt.Errorf("churn delete: %w", err)
		}

		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Reassigner bounces the opportunity between team members while the churners
// run. Lost updates are acceptable; errors are not.
func Reassigner(ctx context.Context, svc *opportunity.Service, manager access.Actor, oppID int, assignees []int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		assignee := assignees[rand.Intn(len(assignees))]
		if _, err := svc.Assign(ctx, manager, oppID, assignee); err != nil {
			return fmt.Errorf("reassign to %d: %w", assignee, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Reader polls the hydrated detail and checks the derived numbers stay
// internally consistent under concurrent mutation.
func Reader(ctx context.Context, svc *opportunity.Service, admin access.Actor, oppID int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		d, err := svc.Get(ctx, admin, oppID)
		if err != nil {
			return fmt.Errorf("read opportunity %d: %w", oppID, err)
		}
		if d.CompleteStations+d.IncompleteStations != d.TotalStations {
			return fmt.Errorf("station counts disagree: %+v", d)
		}
		if d.CompletionPercentage < 0 || d.CompletionPercentage > 100 {
			return fmt.Errorf("completion percentage out of range: %v", d.CompletionPercentage)
		}

		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}
