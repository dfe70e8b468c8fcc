// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// TableApplyResult is the outcome of applying one table's batch parts.
type TableApplyResult struct {
	Table string `json:"table"`

	// Applied counts rows that effectively changed the store.
	Applied int `json:"applied"`

	// AlreadyApplied counts identical-version reapplies (zero effect).
	AlreadyApplied int `json:"already_applied"`

	// ResolvedConflicts counts genuine conflicts settled by policy.
	ResolvedConflicts int `json:"resolved_conflicts"`

	// Skipped counts rows dropped by ClientWins resolutions or
	// ContinueOnError error resolutions.
	Skipped int `json:"skipped"`
}

// ApplyResult is the outcome of applying one whole batch.
type ApplyResult struct {
	// Tables holds per-table outcomes in apply order.
	Tables []TableApplyResult `json:"tables"`
}

// TotalApplied sums effective row changes across tables.
func (a *ApplyResult) TotalApplied() int {
	total := 0
	for _, t := range a.Tables {
		total += t.Applied
	}
	return total
}

// TotalAlreadyApplied sums zero-effect reapplies across tables.
func (a *ApplyResult) TotalAlreadyApplied() int {
	total := 0
	for _, t := range a.Tables {
		total += t.AlreadyApplied
	}
	return total
}

// TotalResolvedConflicts sums settled conflicts across tables.
func (a *ApplyResult) TotalResolvedConflicts() int {
	total := 0
	for _, t := range a.Tables {
		total += t.ResolvedConflicts
	}
	return total
}

// Table returns the entry for table, creating it when absent.
func (a *ApplyResult) Table(name string) *TableApplyResult {
	for i := range a.Tables {
		if a.Tables[i].Table == name {
			return &a.Tables[i]
		}
	}
	a.Tables = append(a.Tables, TableApplyResult{Table: name})
	return &a.Tables[len(a.Tables)-1]
}
