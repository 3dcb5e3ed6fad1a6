package auditgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

const recordActionCypher = `
MERGE (t:Tpp {id: $tppId})
MERGE (c:Consent {id: $consentId})
MERGE (t)-[:HOLDS]->(c)
CREATE (a:Action {
	id: $id,
	status: $status,
	path: $path,
	usageUpdated: $usageUpdated,
	at: $at
})
CREATE (a)-[:UNDER]->(c)
FOREACH (_ IN CASE WHEN $resourceId <> '' THEN [1] ELSE [] END |
	MERGE (acc:Account {resourceId: $resourceId})
	CREATE (a)-[:TOUCHED]->(acc)
)
RETURN a.id AS id
`

const accessedAccountsCypher = `
MATCH (:Consent {id: $consentId})<-[:UNDER]-(a:Action {status: $status})-[:TOUCHED]->(acc:Account)
RETURN DISTINCT acc.resourceId AS resourceId
ORDER BY resourceId
`

// Sink records AIS actions as (Tpp)-[:HOLDS]->(Consent)<-[:UNDER]-(Action)
// with an optional (Action)-[:TOUCHED]->(Account) edge.
type Sink struct {
	Client Client
}

// Record writes one action.
func (s Sink) Record(ctx context.Context, e domain.ActionLogEntry) error {
	params := map[string]any{
		"id":           e.ID,
		"tppId":        e.TppID,
		"consentId":    e.ConsentID,
		"status":       string(e.ActionStatus),
		"path":         e.RequestURI,
		"usageUpdated": e.UpdateUsage,
		"resourceId":   e.ResourceID,
		"at":           e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if _, err := s.Client.ExecuteWrite(ctx, recordActionCypher, params); err != nil {
		return fmt.Errorf("auditgraph: record action: %w", err)
	}
	return nil
}

// AccessedAccounts lists the resource ids a consent successfully read.
func (s Sink) AccessedAccounts(ctx context.Context, consentID string) ([]string, error) {
	res, err := s.Client.ExecuteRead(ctx, accessedAccountsCypher, map[string]any{
		"consentId": consentID,
		"status":    string(domain.ActionSuccess),
	})
	if err != nil {
		return nil, fmt.Errorf("auditgraph: accessed accounts: %w", err)
	}

	out := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		if id, ok := rec["resourceId"].(string); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
