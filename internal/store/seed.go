package store

import "time"

// SampleTransactions returns a small demo transaction set for local
// runs without a database.
func SampleTransactions() []Transaction {
	day := func(d, hh, mm int) time.Time {
		return time.Date(2026, time.March, d, hh, mm, 0, 0, time.UTC)
	}
	return []Transaction{
		{ID: "tx-1001", Time: day(2, 9, 14), Category: "grocery_pos", Merchant: "Fresh Fields Market", Amount: 84.12, State: "NY", City: "Brooklyn"},
		{ID: "tx-1002", Time: day(2, 11, 47), Category: "gas_transport", Merchant: "Roadside Fuel", Amount: 52.30, State: "NJ", City: "Newark"},
		{ID: "tx-1003", Time: day(3, 2, 5), Category: "shopping_net", Merchant: "LuxTime Watches", Amount: 1899.99, State: "FL", City: "Miami", IsFraud: true},
		{ID: "tx-1004", Time: day(3, 14, 22), Category: "entertainment", Merchant: "Cinema Royale", Amount: 28.00, State: "NY", City: "Queens"},
		{ID: "tx-1005", Time: day(4, 3, 41), Category: "misc_net", Merchant: "QuickGift Cards", Amount: 500.00, State: "TX", City: "Houston", IsFraud: true},
		{ID: "tx-1006", Time: day(4, 19, 8), Category: "food_dining", Merchant: "Trattoria Nonna", Amount: 96.45, State: "NY", City: "Manhattan"},
		{ID: "tx-1007", Time: day(5, 8, 30), Category: "grocery_pos", Merchant: "Corner Deli", Amount: 23.75, State: "NY", City: "Brooklyn"},
		{ID: "tx-1008", Time: day(5, 23, 58), Category: "shopping_net", Merchant: "ElectroHub Online", Amount: 2349.00, State: "CA", City: "Fresno", IsFraud: true},
		{ID: "tx-1009", Time: day(6, 12, 15), Category: "health_fitness", Merchant: "PulsePoint Gym", Amount: 59.00, State: "NJ", City: "Hoboken"},
		{ID: "tx-1010", Time: day(6, 16, 2), Category: "misc_pos", Merchant: "Midtown Pharmacy", Amount: 14.20, State: "NY", City: "Manhattan"},
	}
}


// SampleHandbook returns the pages of a short fraud-operations
// handbook for the documentation search tool.
func SampleHandbook() []string {
	return []string{
		"Card-not-present fraud concentrates in online shopping categories. " +
			"Transactions placed between midnight and 05:00 local time carry " +
			"elevated risk, especially when the amount exceeds the cardholder's " +
			"trailing thirty-day average by a factor of five or more.",

		"Gift card and prepaid card purchases are a common cash-out vector. " +
			"Treat any misc_net purchase of round amounts at gift card merchants " +
			"as high risk and review the account for recent credential changes.",

		"Velocity rules: more than three transactions at distinct merchants " +
			"within ten minutes, or purchases in two states within one hour, " +
			"should trigger a step-up authentication challenge before approval.",

		"Chargeback handling: a confirmed fraudulent transaction must be " +
			"flagged in the ledger, the card reissued, and the merchant " +
			"notified within two business days. Document the case reference " +
			"in the dispute tracker.",

		"Customer communication: never share model scores or rule thresholds " +
			"with cardholders. Confirm identity through out-of-band channels " +
			"before discussing account activity.",
	}
}
