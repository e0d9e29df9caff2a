// Package ledger keeps debts, escrows, crop insurance policies and insurance
// claims on top of a stablestore.MemoryManager.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andreyvit/stablestore"
)

type Options struct {
	Logger *zap.Logger

	// Now supplies write timestamps; defaults to time.Now.
	Now func() time.Time
}

// Ledger is the application context: the id counter and the four entity
// tables of one store. Create one per MemoryManager and share it; all
// operations are serialized, so the counter and tables change together.
type Ledger struct {
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time

	ids             *stablestore.Counter
	debts           *stablestore.Table[Debt]
	escrows         *stablestore.Table[Escrow]
	cropInsurance   *stablestore.Table[CropInsurance]
	insuranceClaims *stablestore.Table[InsuranceClaim]
}

// New attaches to the counter and tables stored in mm, initializing them on
// first use. The memory manager must already be open.
func New(mm *stablestore.MemoryManager, opt Options) (*Ledger, error) {
	l := &Ledger{
		logger: opt.Logger,
		now:    opt.Now,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}

	ids, err := stablestore.NewCounter(mm.Region(CounterRegion))
	if err != nil {
		return nil, fmt.Errorf("ledger: cannot create a counter: %w", err)
	}
	l.ids = ids
	l.debts = stablestore.NewTable[Debt](mm.Region(DebtsRegion), "debts", DebtCodec)
	l.escrows = stablestore.NewTable[Escrow](mm.Region(EscrowsRegion), "escrows", EscrowCodec)
	l.cropInsurance = stablestore.NewTable[CropInsurance](mm.Region(CropInsuranceRegion), "crop_insurance", CropInsuranceCodec)
	l.insuranceClaims = stablestore.NewTable[InsuranceClaim](mm.Region(ClaimsRegion), "insurance_claims", InsuranceClaimCodec)

	l.logger.Debug("ledger: attached", zap.Uint64("last_id", ids.Current()))
	return l, nil
}

// LastID returns the most recently minted identifier.
func (l *Ledger) LastID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids.Current()
}

func (l *Ledger) GetDebt(id uint64) (*Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getDebt(id)
}

func (l *Ledger) getDebt(id uint64) (*Debt, error) {
	debt, err := l.debts.TryGet(id)
	if err != nil {
		return nil, internalErr(err, "failed to load debt with id=%d", id)
	}
	if debt == nil {
		return nil, notFoundf("a debt with id=%d not found", id)
	}
	return debt, nil
}

func (l *Ledger) GetEscrow(debtID uint64) (*Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	escrow, err := l.escrows.TryGet(debtID)
	if err != nil {
		return nil, internalErr(err, "failed to load escrow for debt_id=%d", debtID)
	}
	if escrow == nil {
		return nil, notFoundf("escrow for debt_id=%d not found", debtID)
	}
	return escrow, nil
}

func (l *Ledger) GetCropInsurance(id uint64) (*CropInsurance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getCropInsurance(id)
}

func (l *Ledger) getCropInsurance(id uint64) (*CropInsurance, error) {
	ins, err := l.cropInsurance.TryGet(id)
	if err != nil {
		return nil, internalErr(err, "failed to load crop insurance with id=%d", id)
	}
	if ins == nil {
		return nil, notFoundf("crop insurance with id=%d not found", id)
	}
	return ins, nil
}

func (l *Ledger) GetInsuranceClaim(claimID uint64) (*InsuranceClaim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	claim, err := l.insuranceClaims.TryGet(claimID)
	if err != nil {
		return nil, internalErr(err, "failed to load insurance claim with id=%d", claimID)
	}
	if claim == nil {
		return nil, notFoundf("insurance claim with id=%d not found", claimID)
	}
	return claim, nil
}

func (l *Ledger) AddDebt(p DebtPayload) (*Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := p.validate(); err != nil {
		return nil, err
	}
	id, err := l.mint()
	if err != nil {
		return nil, err
	}
	debt := &Debt{
		ID:        id,
		Debtor:    p.Debtor,
		Creditor:  p.Creditor,
		Amount:    p.Amount,
		CreatedAt: TimestampOf(l.now()),
	}
	if err := l.debts.Insert(id, debt); err != nil {
		return nil, internalErr(err, "failed to save debt with id=%d", id)
	}
	l.logger.Info("ledger: debt added", zap.Uint64("id", id), zap.Uint64("amount", debt.Amount))
	return debt, nil
}

// UpdateDebt replaces the debtor, creditor and amount of an existing debt,
// keeping its id and creation time.
func (l *Ledger) UpdateDebt(id uint64, p DebtPayload) (*Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := p.validate(); err != nil {
		return nil, err
	}
	debt, err := l.getDebt(id)
	if err != nil {
		return nil, err
	}
	debt.Debtor = p.Debtor
	debt.Creditor = p.Creditor
	debt.Amount = p.Amount
	if err := l.debts.Insert(id, debt); err != nil {
		return nil, internalErr(err, "failed to save debt with id=%d", id)
	}
	l.logger.Info("ledger: debt updated", zap.Uint64("id", id), zap.Uint64("amount", debt.Amount))
	return debt, nil
}

// CreateEscrow records an escrow for an existing debt, replacing any earlier
// escrow for the same debt.
func (l *Ledger) CreateEscrow(p EscrowPayload) (*Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := p.validate(); err != nil {
		return nil, err
	}
	debt, err := l.getDebt(p.DebtID)
	if err != nil {
		return nil, err
	}
	escrow := &Escrow{
		DebtID:    debt.ID,
		Amount:    p.Amount,
		CreatedAt: TimestampOf(l.now()),
	}
	if err := l.escrows.Insert(debt.ID, escrow); err != nil {
		return nil, internalErr(err, "failed to save escrow for debt_id=%d", debt.ID)
	}
	l.logger.Info("ledger: escrow created", zap.Uint64("debt_id", debt.ID), zap.Uint64("amount", escrow.Amount))
	return escrow, nil
}

func (l *Ledger) PurchaseCropInsurance(p CropInsurancePayload) (*CropInsurance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := p.validate(); err != nil {
		return nil, err
	}
	id, err := l.mint()
	if err != nil {
		return nil, err
	}
	ins := &CropInsurance{
		ID:                id,
		Farmer:            p.Farmer,
		CropType:          p.CropType,
		CoverageAmount:    p.CoverageAmount,
		CoverageStartDate: p.CoverageStartDate,
		CoverageEndDate:   p.CoverageEndDate,
	}
	if err := l.cropInsurance.Insert(id, ins); err != nil {
		return nil, internalErr(err, "failed to save crop insurance with id=%d", id)
	}
	l.logger.Info("ledger: crop insurance purchased", zap.Uint64("id", id), zap.Uint64("coverage", ins.CoverageAmount))
	return ins, nil
}

// SubmitInsuranceClaim files a claim against an existing policy and returns
// the claim together with the id it is stored under.
func (l *Ledger) SubmitInsuranceClaim(p InsuranceClaimPayload) (uint64, *InsuranceClaim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ins, err := l.getCropInsurance(p.InsuranceID)
	if err != nil {
		return 0, nil, err
	}
	if err := p.validate(); err != nil {
		return 0, nil, err
	}
	claimID, err := l.mint()
	if err != nil {
		return 0, nil, err
	}
	claim := &InsuranceClaim{
		InsuranceID: ins.ID,
		ClaimAmount: p.ClaimAmount,
		ClaimDate:   TimestampOf(l.now()),
	}
	if err := l.insuranceClaims.Insert(claimID, claim); err != nil {
		return 0, nil, internalErr(err, "failed to save insurance claim with id=%d", claimID)
	}
	l.logger.Info("ledger: insurance claim submitted", zap.Uint64("claim_id", claimID), zap.Uint64("insurance_id", ins.ID))
	return claimID, claim, nil
}

func (l *Ledger) mint() (uint64, error) {
	id, err := l.ids.Mint()
	if err != nil {
		l.logger.Error("ledger: mint failed", zap.Error(err))
		return 0, internalErr(err, "failed to generate unique ID")
	}
	return id, nil
}
