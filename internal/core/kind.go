package core

// Kind discriminates the two transaction variants.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Kinds returns every valid kind, expenses first.
func Kinds() []Kind {
	return []Kind{KindExpense, KindIncome}
}

// ParseKind maps user input to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindExpense, KindIncome:
		return true
	default:
		return false
	}
}

// RecordsKey is the storage key holding the record list for this kind.
func (k Kind) RecordsKey() string {
	if k == KindIncome {
		return "cashflow_incomes"
	}
	return "cashflow_expenses"
}

// CategoriesKey is the storage key holding the category vocabulary for this kind.
func (k Kind) CategoriesKey() string {
	if k == KindIncome {
		return "cashflow_income_reasons"
	}
	return "cashflow_reasons"
}
