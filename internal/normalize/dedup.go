package normalize

import (
	"fmt"

	"github.com/verte-zerg/lrsdash/internal/model"
)

// DedupPolicy removes duplicate statements. Implementations must keep input order.
type DedupPolicy interface {
	Dedup(statements []model.Statement) []model.Statement
}

// KeepAll keeps every statement, including double-reported ones.
type KeepAll struct{}

func (KeepAll) Dedup(statements []model.Statement) []model.Statement {
	return statements
}

// ByStatementID keeps the first statement for each id. Statements without an id are kept.
type ByStatementID struct{}

func (ByStatementID) Dedup(statements []model.Statement) []model.Statement {
	seen := make(map[string]struct{}, len(statements))
	out := make([]model.Statement, 0, len(statements))
	for _, s := range statements {
		if s.ID != "" {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			seen[s.ID] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (DedupPolicy, error) {
	switch name {
	case "", "none", "keep-all":
		return KeepAll{}, nil
	case "statement-id", "id":
		return ByStatementID{}, nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q (use none or statement-id)", name)
	}
}
