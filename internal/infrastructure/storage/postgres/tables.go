package postgres

// Ledger tables. The mirror database uses the same schema.
const (
	TableOwners       = "owners"
	TableDesignations = "designations"
	TableClients      = "clients"
	TableMovements    = "movements"
	TablePayments     = "payments"
	TableExpenses     = "expenses"
)
