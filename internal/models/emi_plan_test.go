package models

import (
	"testing"
	"time"
)

func installmentAt(seq int, due time.Time, status InstallmentStatus) Installment {
	return Installment{
		Sequence:       seq,
		DueDate:        due,
		GracePeriodEnd: due.Add(3 * 24 * time.Hour),
		Amount:         1000,
		Status:         status,
	}
}

func TestCalculateStatus(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name               string
		planStatus         PlanStatus
		installments       []Installment
		wantOverdueCount   int
		wantTotalOverdue   float64
		wantPaidCount      int
		wantHasOverdue     bool
		wantHasAccess      bool
		wantNextDueAmount  float64
		wantNextDueMissing bool
	}{
		{
			name:       "all pending inside grace, access granted",
			planStatus: PlanStatusActive,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, 0, -1), InstallmentStatusPaid),
				installmentAt(2, now.AddDate(0, 1, 0), InstallmentStatusPending),
			},
			wantPaidCount:     1,
			wantHasAccess:     true,
			wantNextDueAmount: 1000,
		},
		{
			name:       "pending past grace counts overdue but keeps access",
			planStatus: PlanStatusActive,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, -2, 0), InstallmentStatusPaid),
				installmentAt(2, now.AddDate(0, 0, -10), InstallmentStatusPending),
			},
			wantOverdueCount:  1,
			wantTotalOverdue:  1000,
			wantPaidCount:     1,
			wantHasOverdue:    true,
			wantHasAccess:     true,
			wantNextDueAmount: 1000,
		},
		{
			name:       "late installment blocks access",
			planStatus: PlanStatusActive,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, -2, 0), InstallmentStatusPaid),
				installmentAt(2, now.AddDate(0, 0, -10), InstallmentStatusLate),
			},
			wantOverdueCount:  1,
			wantTotalOverdue:  1000,
			wantPaidCount:     1,
			wantHasOverdue:    true,
			wantHasAccess:     false,
			wantNextDueAmount: 1000,
		},
		{
			name:       "locked plan never grants access",
			planStatus: PlanStatusLocked,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, 1, 0), InstallmentStatusPending),
			},
			wantHasAccess:     false,
			wantNextDueAmount: 1000,
		},
		{
			name:       "multiple overdue sum up",
			planStatus: PlanStatusActive,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, -3, 0), InstallmentStatusLate),
				installmentAt(2, now.AddDate(0, -2, 0), InstallmentStatusLate),
				installmentAt(3, now.AddDate(0, 1, 0), InstallmentStatusPending),
			},
			wantOverdueCount:  2,
			wantTotalOverdue:  2000,
			wantHasOverdue:    true,
			wantHasAccess:     false,
			wantNextDueAmount: 1000,
		},
		{
			name:       "fully paid plan",
			planStatus: PlanStatusActive,
			installments: []Installment{
				installmentAt(1, now.AddDate(0, -2, 0), InstallmentStatusPaid),
				installmentAt(2, now.AddDate(0, -1, 0), InstallmentStatusPaid),
			},
			wantPaidCount:      2,
			wantHasAccess:      true,
			wantNextDueMissing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := EMIPlan{Status: tt.planStatus, Installments: tt.installments}
			status := plan.CalculateStatus(now)

			if status.OverdueCount != tt.wantOverdueCount {
				t.Errorf("OverdueCount = %d; want %d", status.OverdueCount, tt.wantOverdueCount)
			}
			if status.TotalOverdue != tt.wantTotalOverdue {
				t.Errorf("TotalOverdue = %v; want %v", status.TotalOverdue, tt.wantTotalOverdue)
			}
			if status.PaidCount != tt.wantPaidCount {
				t.Errorf("PaidCount = %d; want %d", status.PaidCount, tt.wantPaidCount)
			}
			if status.HasOverduePayments != tt.wantHasOverdue {
				t.Errorf("HasOverduePayments = %v; want %v", status.HasOverduePayments, tt.wantHasOverdue)
			}
			if status.HasAccessToContent != tt.wantHasAccess {
				t.Errorf("HasAccessToContent = %v; want %v", status.HasAccessToContent, tt.wantHasAccess)
			}

			if tt.wantNextDueMissing {
				if status.NextDueDate != nil {
					t.Errorf("NextDueDate = %v; want nil", *status.NextDueDate)
				}
			} else {
				if status.NextDueAmount == nil || *status.NextDueAmount != tt.wantNextDueAmount {
					t.Errorf("NextDueAmount = %v; want %v", status.NextDueAmount, tt.wantNextDueAmount)
				}
			}
		})
	}
}

func TestCalculateStatusNextDueIsEarliestUnpaid(t *testing.T) {
	now := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	early := now.AddDate(0, 1, 0)
	later := now.AddDate(0, 2, 0)

	plan := EMIPlan{
		Status: PlanStatusActive,
		Installments: []Installment{
			installmentAt(3, later, InstallmentStatusPending),
			installmentAt(2, early, InstallmentStatusPending),
			installmentAt(1, now.AddDate(0, -1, 0), InstallmentStatusPaid),
		},
	}

	status := plan.CalculateStatus(now)
	if status.NextDueDate == nil || !status.NextDueDate.Equal(early) {
		t.Fatalf("NextDueDate = %v; want %v", status.NextDueDate, early)
	}
}

func TestOpenLockEntry(t *testing.T) {
	unlockAt := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	plan := EMIPlan{
		LockHistory: []LockHistoryEntry{
			{ID: 1, UnlockDate: &unlockAt},
			{ID: 2},
		},
	}

	open := plan.OpenLockEntry()
	if open == nil || open.ID != 2 {
		t.Fatalf("OpenLockEntry = %v; want entry 2", open)
	}

	closedPlan := EMIPlan{LockHistory: []LockHistoryEntry{{ID: 1, UnlockDate: &unlockAt}}}
	if closedPlan.OpenLockEntry() != nil {
		t.Fatal("OpenLockEntry on fully closed history should be nil")
	}
}
