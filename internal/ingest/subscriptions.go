package ingest

import "copytrade-core/internal/domain"

// DefaultCommitment is used for every subscription's commitment level.
const DefaultCommitment = "confirmed"

// DefaultSubscriptions builds the fixed subscription set the ingester
// issues on every successful connect: slot updates, the wallet's own
// account, and one programSubscribe per supported DEX program id.
func DefaultSubscriptions(watchedAccount string, programIDsByDex map[domain.DexKind]string) []Subscription {
	subs := []Subscription{
		{Method: "slotSubscribe"},
	}
	if watchedAccount != "" {
		subs = append(subs, Subscription{
			Method: "accountSubscribe",
			Params: []interface{}{watchedAccount, map[string]interface{}{"encoding": "jsonParsed", "commitment": DefaultCommitment}},
		})
	}
	for _, programID := range programIDsByDex {
		subs = append(subs, Subscription{
			Method: "programSubscribe",
			Params: []interface{}{programID, map[string]interface{}{"encoding": "jsonParsed", "commitment": DefaultCommitment}},
		})
	}
	return subs
}
