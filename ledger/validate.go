package ledger

// All checks run before any id is minted, so a rejected request leaves the
// counter and tables untouched.

func validateText(value, field string) error {
	if value == "" {
		return invalidf("field '%s' cannot be empty", field)
	}
	if len(value) > MaxTextLen {
		return invalidf("field '%s' is longer than %d bytes", field, MaxTextLen)
	}
	return nil
}

func (p *DebtPayload) validate() error {
	if err := validateText(p.Debtor, "debtor"); err != nil {
		return err
	}
	if err := validateText(p.Creditor, "creditor"); err != nil {
		return err
	}
	if p.Amount == 0 {
		return invalidf("debt amount must be greater than zero")
	}
	return nil
}

func (p *EscrowPayload) validate() error {
	if p.Amount == 0 {
		return invalidf("escrow amount must be greater than zero")
	}
	return nil
}

func (p *CropInsurancePayload) validate() error {
	if err := validateText(p.Farmer, "farmer"); err != nil {
		return err
	}
	if err := validateText(p.CropType, "crop_type"); err != nil {
		return err
	}
	if p.CoverageAmount == 0 {
		return invalidf("coverage amount must be greater than zero")
	}
	return nil
}

func (p *InsuranceClaimPayload) validate() error {
	if p.ClaimAmount == 0 {
		return invalidf("claim amount must be greater than zero")
	}
	return nil
}
