package dummydb

import (
	"sort"
	"sync"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

type (
	// DB is an in-memory database. Transactions are serialized: one runs at a time, and a failed one
	// restores the tables it started with.
	DB struct {
		sync.RWMutex
		tx sync.Mutex

		students    map[string]student.Student
		upgrades    map[string]student.UpgradeRecord
		assignments map[string]ledger.FeeAssignment
		payments    map[string]ledger.Payment
		users       map[string]user.User
	}

	snapshot struct {
		students    map[string]student.Student
		upgrades    map[string]student.UpgradeRecord
		assignments map[string]ledger.FeeAssignment
		payments    map[string]ledger.Payment
		users       map[string]user.User
	}
)

func Open() *DB {
	return &DB{
		students:    make(map[string]student.Student),
		upgrades:    make(map[string]student.UpgradeRecord),
		assignments: make(map[string]ledger.FeeAssignment),
		payments:    make(map[string]ledger.Payment),
		users:       make(map[string]user.User),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	cp := make(map[K]V, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (db *DB) snapshot() snapshot {
	db.RLock()
	defer db.RUnlock()
	return snapshot{
		students:    copyMap(db.students),
		upgrades:    copyMap(db.upgrades),
		assignments: copyMap(db.assignments),
		payments:    copyMap(db.payments),
		users:       copyMap(db.users),
	}
}

func (db *DB) restore(s snapshot) {
	db.Lock()
	defer db.Unlock()
	db.students = s.students
	db.upgrades = s.upgrades
	db.assignments = s.assignments
	db.payments = s.payments
	db.users = s.users
}

// atomic runs fn as a transaction. Nested calls (inTx) join the running transaction.
func (db *DB) atomic(inTx bool, fn func() error) error {
	if inTx {
		return fn()
	}
	db.tx.Lock()
	defer db.tx.Unlock()

	snap := db.snapshot()
	if err := fn(); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// Flush empties every table.
func (db *DB) Flush() {
	db.Lock()
	defer db.Unlock()
	db.students = make(map[string]student.Student)
	db.upgrades = make(map[string]student.UpgradeRecord)
	db.assignments = make(map[string]ledger.FeeAssignment)
	db.payments = make(map[string]ledger.Payment)
	db.users = make(map[string]user.User)
}

// comparator orders two rows: negative when a comes first.
type comparator[T any] func(a, b T) int

// sortRows sorts items by the orderings whose fields are known, falling back to fallback.
func sortRows[T any](items []T, orderings []core.DBOrdering, fields map[string]comparator[T], fallback ...core.DBOrdering) {
	var ords []core.DBOrdering
	for _, ord := range orderings {
		if _, ok := fields[ord.Field]; ok {
			ords = append(ords, ord)
		}
	}
	if len(ords) == 0 {
		ords = fallback
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ords {
			c := fields[ord.Field](items[i], items[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
