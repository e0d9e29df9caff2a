package ledger

import (
	"sort"

	"github.com/andreyvit/stablestore"
)

// Entry is one stored record together with the key it is stored under.
type Entry struct {
	Key   uint64 `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// TableNames lists the tables accepted by Dump.
func (l *Ledger) TableNames() []string {
	names := []string{
		l.debts.Name(),
		l.escrows.Name(),
		l.cropInsurance.Name(),
		l.insuranceClaims.Name(),
	}
	sort.Strings(names)
	return names
}

// Dump returns up to limit records of the named table with keys >= from, in
// ascending key order. A zero limit means no limit.
func (l *Ledger) Dump(table string, from uint64, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch table {
	case l.debts.Name():
		return dumpTable(l.debts, from, limit)
	case l.escrows.Name():
		return dumpTable(l.escrows, from, limit)
	case l.cropInsurance.Name():
		return dumpTable(l.cropInsurance, from, limit)
	case l.insuranceClaims.Name():
		return dumpTable(l.insuranceClaims, from, limit)
	default:
		return nil, invalidf("unknown table %q", table)
	}
}

func dumpTable[T any](tbl *stablestore.Table[T], from uint64, limit int) ([]Entry, error) {
	result := []Entry{}
	err := tbl.Scan(from, func(key uint64, v *T) bool {
		result = append(result, Entry{key, v})
		return limit <= 0 || len(result) < limit
	})
	if err != nil {
		return nil, internalErr(err, "failed to read %s", tbl.Name())
	}
	return result, nil
}
