package ledger

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/stablestore"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Ledger, *stablestore.MemoryManager) {
	t.Helper()
	mm, err := stablestore.OpenInMemory(stablestore.Options{IsTesting: true})
	require.NoError(t, err)
	t.Cleanup(func() { mm.Close() })
	return newLedger(t, mm), mm
}

func newLedger(t *testing.T, mm *stablestore.MemoryManager) *Ledger {
	t.Helper()
	l, err := New(mm, Options{Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	return l
}

func TestAddDebt(t *testing.T) {
	l, _ := setup(t)

	debt, err := l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, &Debt{ID: 1, Debtor: "alice", Creditor: "bob", Amount: 100, CreatedAt: TimestampOf(testNow)}, debt)

	got, err := l.GetDebt(1)
	require.NoError(t, err)
	assert.Equal(t, debt, got)
}

func TestAddDebt_Invalid(t *testing.T) {
	l, _ := setup(t)

	tests := []struct {
		name string
		p    DebtPayload
		msg  string
	}{
		{"empty debtor", DebtPayload{Creditor: "bob", Amount: 1}, "field 'debtor' cannot be empty"},
		{"empty creditor", DebtPayload{Debtor: "alice", Amount: 1}, "field 'creditor' cannot be empty"},
		{"zero amount", DebtPayload{Debtor: "alice", Creditor: "bob"}, "debt amount must be greater than zero"},
		{"long debtor", DebtPayload{Debtor: strings.Repeat("a", MaxTextLen+1), Creditor: "bob", Amount: 1}, "field 'debtor' is longer than 256 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddDebt(tt.p)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	assert.Equal(t, uint64(0), l.LastID(), "rejected requests must not consume ids")
}

func TestAddDebt_LongestValidText(t *testing.T) {
	l, _ := setup(t)
	long := strings.Repeat("é", MaxTextLen/2)

	debt, err := l.AddDebt(DebtPayload{Debtor: long, Creditor: long, Amount: math.MaxUint64})
	require.NoError(t, err)
	got, err := l.GetDebt(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, long, got.Debtor)
	assert.Equal(t, uint64(math.MaxUint64), got.Amount)
}

func TestGetDebt_NotFound(t *testing.T) {
	l, _ := setup(t)

	_, err := l.GetDebt(0)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "NotFound: a debt with id=0 not found")
}

func TestUpdateDebt(t *testing.T) {
	l, _ := setup(t)
	debt, err := l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.NoError(t, err)

	l.now = func() time.Time { return testNow.Add(time.Hour) }
	updated, err := l.UpdateDebt(debt.ID, DebtPayload{Debtor: "carol", Creditor: "dave", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, &Debt{ID: debt.ID, Debtor: "carol", Creditor: "dave", Amount: 50, CreatedAt: debt.CreatedAt}, updated)

	got, err := l.GetDebt(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, uint64(1), l.LastID(), "update must not mint")

	_, err = l.UpdateDebt(42, DebtPayload{Debtor: "x", Creditor: "y", Amount: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.UpdateDebt(debt.ID, DebtPayload{Debtor: "x", Creditor: "y"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	got, err = l.GetDebt(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestCreateEscrow(t *testing.T) {
	l, _ := setup(t)

	_, err := l.CreateEscrow(EscrowPayload{DebtID: 999, Amount: 10})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "a debt with id=999 not found")

	debt, err := l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.NoError(t, err)

	_, err = l.CreateEscrow(EscrowPayload{DebtID: debt.ID})
	require.ErrorIs(t, err, ErrInvalidInput)

	escrow, err := l.CreateEscrow(EscrowPayload{DebtID: debt.ID, Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, &Escrow{DebtID: debt.ID, Amount: 40, CreatedAt: TimestampOf(testNow)}, escrow)

	// a second escrow for the same debt replaces the first
	_, err = l.CreateEscrow(EscrowPayload{DebtID: debt.ID, Amount: 60})
	require.NoError(t, err)
	got, err := l.GetEscrow(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got.Amount)

	assert.Equal(t, uint64(1), l.LastID(), "escrows are keyed by debt, not minted")

	_, err = l.GetEscrow(debt.ID + 1)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "escrow for debt_id=2 not found")
}

func TestPurchaseCropInsurance(t *testing.T) {
	l, _ := setup(t)
	start := TimestampOf(testNow)
	end := TimestampOf(testNow.AddDate(0, 6, 0))

	_, err := l.PurchaseCropInsurance(CropInsurancePayload{CropType: "wheat", CoverageAmount: 10})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "field 'farmer' cannot be empty")
	assert.Equal(t, uint64(0), l.LastID())

	_, err = l.PurchaseCropInsurance(CropInsurancePayload{Farmer: "fred", CropType: "wheat"})
	require.ErrorIs(t, err, ErrInvalidInput)

	ins, err := l.PurchaseCropInsurance(CropInsurancePayload{
		Farmer:            "fred",
		CropType:          "wheat",
		CoverageAmount:    5000,
		CoverageStartDate: start,
		CoverageEndDate:   end,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ins.ID)

	got, err := l.GetCropInsurance(ins.ID)
	require.NoError(t, err)
	assert.Equal(t, ins, got)
	assert.True(t, testNow.Equal(got.CoverageStartDate.Time()))

	_, err = l.GetCropInsurance(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitInsuranceClaim(t *testing.T) {
	l, _ := setup(t)

	_, _, err := l.SubmitInsuranceClaim(InsuranceClaimPayload{InsuranceID: 7, ClaimAmount: 10})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "crop insurance with id=7 not found")

	ins, err := l.PurchaseCropInsurance(CropInsurancePayload{Farmer: "fred", CropType: "corn", CoverageAmount: 100})
	require.NoError(t, err)

	_, _, err = l.SubmitInsuranceClaim(InsuranceClaimPayload{InsuranceID: ins.ID})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "claim amount must be greater than zero")

	claimID, claim, err := l.SubmitInsuranceClaim(InsuranceClaimPayload{InsuranceID: ins.ID, ClaimAmount: 75})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), claimID)
	assert.Equal(t, &InsuranceClaim{InsuranceID: ins.ID, ClaimAmount: 75, ClaimDate: TimestampOf(testNow)}, claim)

	got, err := l.GetInsuranceClaim(claimID)
	require.NoError(t, err)
	assert.Equal(t, claim, got)

	_, err = l.GetInsuranceClaim(ins.ID)
	require.ErrorIs(t, err, ErrNotFound, "claims and policies live in different tables")
	assert.Contains(t, err.Error(), "insurance claim with id=1 not found")
}

func TestIDsAreSharedAcrossKinds(t *testing.T) {
	l, _ := setup(t)

	d1, err := l.AddDebt(DebtPayload{Debtor: "a", Creditor: "b", Amount: 1})
	require.NoError(t, err)
	ins, err := l.PurchaseCropInsurance(CropInsurancePayload{Farmer: "f", CropType: "rye", CoverageAmount: 1})
	require.NoError(t, err)
	claimID, _, err := l.SubmitInsuranceClaim(InsuranceClaimPayload{InsuranceID: ins.ID, ClaimAmount: 1})
	require.NoError(t, err)
	d2, err := l.AddDebt(DebtPayload{Debtor: "a", Creditor: "b", Amount: 2})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3, 4}, []uint64{d1.ID, ins.ID, claimID, d2.ID})
	assert.Equal(t, uint64(4), l.LastID())
}

func TestSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	mm, err := stablestore.Open(path, stablestore.Options{IsTesting: true})
	require.NoError(t, err)
	l := newLedger(t, mm)
	debt, err := l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.NoError(t, err)
	_, err = l.CreateEscrow(EscrowPayload{DebtID: debt.ID, Amount: 30})
	require.NoError(t, err)
	require.NoError(t, mm.Close())

	mm, err = stablestore.Open(path, stablestore.Options{IsTesting: true})
	require.NoError(t, err)
	defer mm.Close()
	l = newLedger(t, mm)

	got, err := l.GetDebt(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, debt, got)
	escrow, err := l.GetEscrow(debt.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), escrow.Amount)

	next, err := l.AddDebt(DebtPayload{Debtor: "carol", Creditor: "dave", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.ID)
}

func TestStorageFailureIsInternal(t *testing.T) {
	l, mm := setup(t)
	debt, err := l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.NoError(t, err)
	require.NoError(t, mm.Close())

	_, err = l.AddDebt(DebtPayload{Debtor: "alice", Creditor: "bob", Amount: 100})
	require.ErrorIs(t, err, ErrInternal)
	assert.Contains(t, err.Error(), "failed to generate unique ID")
	assert.ErrorIs(t, err, stablestore.ErrMintFailed)

	_, err = l.GetDebt(debt.ID)
	assert.ErrorIs(t, err, ErrInternal)

	_, err = l.PurchaseCropInsurance(CropInsurancePayload{Farmer: "", CropType: "x", CoverageAmount: 1})
	assert.ErrorIs(t, err, ErrInvalidInput, "validation runs before storage is touched")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(notFoundf("x")))
	assert.Equal(t, InvalidInput, KindOf(invalidf("x")))
	assert.Equal(t, InternalError, KindOf(internalErr(errors.New("io"), "x")))
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(0), KindOf(nil))

	assert.Equal(t, "NotFound", NotFound.String())
	assert.Equal(t, "ErrorKind(9)", ErrorKind(9).String())

	err := internalErr(errors.New("io"), "failed to save")
	assert.EqualError(t, err, "InternalError: failed to save: io")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, ErrNotFound, "NotFound")
}

func TestDump(t *testing.T) {
	l, _ := setup(t)
	for i := 1; i <= 3; i++ {
		_, err := l.AddDebt(DebtPayload{Debtor: "d", Creditor: "c", Amount: uint64(i)})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"crop_insurance", "debts", "escrows", "insurance_claims"}, l.TableNames())

	entries, err := l.Dump("debts", 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[0].Key)
	assert.Equal(t, uint64(2), entries[0].Value.(*Debt).Amount)

	entries, err = l.Dump("debts", 0, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Key)

	entries, err = l.Dump("escrows", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = l.Dump("nope", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
