package decision

// Validate checks the structural shape of an intent. It never inspects
// policy semantics; that belongs to the evaluator.
func Validate(intent *FinancialIntent) error {
	if intent == nil {
		return NewValidationError("", "intent is required")
	}

	var errs ValidationErrors

	if intent.ID == "" {
		errs = append(errs, NewValidationError("id", "is required"))
	}
	if intent.Operation == "" {
		errs = append(errs, NewValidationError("operation", "is required"))
	} else if !intent.Operation.Valid() {
		errs = append(errs, NewValidationError("operation", "unknown operation "+string(intent.Operation)))
	}
	if intent.User.ID == "" {
		errs = append(errs, NewValidationError("user.id", "is required"))
	}
	if intent.Financial.Currency == "" {
		errs = append(errs, NewValidationError("financial.currency", "is required"))
	}
	if intent.Financial.Amount < 0 {
		errs = append(errs, NewValidationError("financial.amount", "must not be negative"))
	}
	if s := intent.Financial.Sensitivity; s != "" && s.Rank() < 0 {
		errs = append(errs, NewValidationError("financial.sensitivity", "unknown level "+string(s)))
	}
	if t := intent.User.Network.Type; t != "" {
		switch t {
		case NetworkCorporate, NetworkVPN, NetworkPublic, NetworkGovernment:
		default:
			errs = append(errs, NewValidationError("user.network.type", "unknown network type "+string(t)))
		}
	}
	if intent.Request.Timestamp.IsZero() {
		errs = append(errs, NewValidationError("request.timestamp", "is required"))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
