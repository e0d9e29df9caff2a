package ledger

import (
	"time"

	"github.com/andreyvit/stablestore"
)

const (
	// MaxRecordSize bounds the encoded size of every stored record.
	MaxRecordSize = 1024

	// MaxTextLen bounds text fields so that any valid record fits MaxRecordSize.
	MaxTextLen = 256

	recordSchemaVer = 1
)

// Region layout of a ledger store. The assignment is persisted implicitly by
// the data, so these values must never change.
const (
	CounterRegion stablestore.MemoryID = iota
	DebtsRegion
	EscrowsRegion
	CropInsuranceRegion
	ClaimsRegion
)

// Timestamp is a wall-clock instant in nanoseconds since the Unix epoch.
type Timestamp uint64

// TimestampOf converts t, clamping instants before the epoch to 0.
func TimestampOf(t time.Time) Timestamp {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return Timestamp(ns)
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

type Debt struct {
	ID        uint64    `msgpack:"id" json:"id" yaml:"id"`
	Debtor    string    `msgpack:"d" json:"debtor" yaml:"debtor"`
	Creditor  string    `msgpack:"c" json:"creditor" yaml:"creditor"`
	Amount    uint64    `msgpack:"a" json:"amount" yaml:"amount"`
	CreatedAt Timestamp `msgpack:"t" json:"created_at" yaml:"created_at"`
}

// Escrow is keyed by the debt it secures; there is at most one per debt.
type Escrow struct {
	DebtID    uint64    `msgpack:"debt" json:"debt_id" yaml:"debt_id"`
	Amount    uint64    `msgpack:"a" json:"amount" yaml:"amount"`
	CreatedAt Timestamp `msgpack:"t" json:"created_at" yaml:"created_at"`
}

type CropInsurance struct {
	ID                uint64    `msgpack:"id" json:"id" yaml:"id"`
	Farmer            string    `msgpack:"f" json:"farmer" yaml:"farmer"`
	CropType          string    `msgpack:"crop" json:"crop_type" yaml:"crop_type"`
	CoverageAmount    uint64    `msgpack:"a" json:"coverage_amount" yaml:"coverage_amount"`
	CoverageStartDate Timestamp `msgpack:"start" json:"coverage_start_date" yaml:"coverage_start_date"`
	CoverageEndDate   Timestamp `msgpack:"end" json:"coverage_end_date" yaml:"coverage_end_date"`
}

// InsuranceClaim is stored under a separately minted claim id, which is not
// part of the record.
type InsuranceClaim struct {
	InsuranceID uint64    `msgpack:"ins" json:"insurance_id" yaml:"insurance_id"`
	ClaimAmount uint64    `msgpack:"a" json:"claim_amount" yaml:"claim_amount"`
	ClaimDate   Timestamp `msgpack:"t" json:"claim_date" yaml:"claim_date"`
}

type DebtPayload struct {
	Debtor   string `json:"debtor" yaml:"debtor"`
	Creditor string `json:"creditor" yaml:"creditor"`
	Amount   uint64 `json:"amount" yaml:"amount"`
}

type EscrowPayload struct {
	DebtID uint64 `json:"debt_id" yaml:"debt_id"`
	Amount uint64 `json:"amount" yaml:"amount"`
}

type CropInsurancePayload struct {
	Farmer            string    `json:"farmer" yaml:"farmer"`
	CropType          string    `json:"crop_type" yaml:"crop_type"`
	CoverageAmount    uint64    `json:"coverage_amount" yaml:"coverage_amount"`
	CoverageStartDate Timestamp `json:"coverage_start_date" yaml:"coverage_start_date"`
	CoverageEndDate   Timestamp `json:"coverage_end_date" yaml:"coverage_end_date"`
}

type InsuranceClaimPayload struct {
	InsuranceID uint64 `json:"insurance_id" yaml:"insurance_id"`
	ClaimAmount uint64 `json:"claim_amount" yaml:"claim_amount"`
}

var (
	DebtCodec           = stablestore.MsgpackCodec[Debt]{Max: MaxRecordSize, SchemaVer: recordSchemaVer}
	EscrowCodec         = stablestore.MsgpackCodec[Escrow]{Max: MaxRecordSize, SchemaVer: recordSchemaVer}
	CropInsuranceCodec  = stablestore.MsgpackCodec[CropInsurance]{Max: MaxRecordSize, SchemaVer: recordSchemaVer}
	InsuranceClaimCodec = stablestore.MsgpackCodec[InsuranceClaim]{Max: MaxRecordSize, SchemaVer: recordSchemaVer}
)
