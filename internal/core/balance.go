package core

// Totals are the full-history sums per operation type.
type Totals struct {
	Income     int64
	Expense    int64
	ReserveIn  int64
	ReserveOut int64
}

// Balance is derived from Totals and never stored.
type Balance struct {
	Total     int64 // income - expense
	Reserve   int64 // reserve_in - reserve_out
	Available int64 // Total - Reserve
}

// Add folds one operation amount into the totals.
func (t *Totals) Add(typ OperationType, amount int64) {
	switch typ {
	case OpIncome:
		t.Income += amount
	case OpExpense:
		t.Expense += amount
	case OpReserveIn:
		t.ReserveIn += amount
	case OpReserveOut:
		t.ReserveOut += amount
	default:
		panic("core: unhandled operation type " + string(typ))
	}
}

// Of returns the total for a single operation type.
func (t Totals) Of(typ OperationType) int64 {
	switch typ {
	case OpIncome:
		return t.Income
	case OpExpense:
		return t.Expense
	case OpReserveIn:
		return t.ReserveIn
	case OpReserveOut:
		return t.ReserveOut
	default:
		panic("core: unhandled operation type " + string(typ))
	}
}

// Fits reports whether amount can be added to the total of typ without
// passing MaxTotal.
func (t Totals) Fits(typ OperationType, amount int64) error {
	if amount < 0 || amount > MaxTotal-t.Of(typ) {
		return ErrTotalOutOfRange
	}
	return nil
}

func (t Totals) Balance() Balance {
	total := t.Income - t.Expense
	reserve := t.ReserveIn - t.ReserveOut
	return Balance{
		Total:     total,
		Reserve:   reserve,
		Available: total - reserve,
	}
}

// SumOperations computes totals over an operation stream.
func SumOperations(ops []Operation) Totals {
	var t Totals
	for _, op := range ops {
		t.Add(op.Type, op.Amount)
	}
	return t
}

// Allows reports whether posting amount of the given type keeps the fund
// non-negative: expenses and reserve_in draw on Available, reserve_out draws
// on Reserve, income is always allowed.
func (b Balance) Allows(typ OperationType, amount int64) error {
	switch typ {
	case OpIncome:
		return nil
	case OpExpense, OpReserveIn:
		if amount > b.Available {
			return ErrInsufficientFunds
		}
		return nil
	case OpReserveOut:
		if amount > b.Reserve {
			return ErrInsufficientReserve
		}
		return nil
	default:
		panic("core: unhandled operation type " + string(typ))
	}
}
