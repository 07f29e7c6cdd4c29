package model

type RewriteKind string

const (
	RewriteCoreference   RewriteKind = "coreference"
	RewriteEllipsis      RewriteKind = "ellipsis"
	RewriteExpansion     RewriteKind = "expansion"
	RewriteNormalization RewriteKind = "normalization"
)

type RewriteOperation struct {
	Kind RewriteKind `json:"kind"`
	From string      `json:"from"`
	To   string      `json:"to"`
}

// RewriteResult is produced once per turn and read-only afterwards.
type RewriteResult struct {
	Original   string             `json:"original"`
	Normalized string             `json:"normalized"`
	Operations []RewriteOperation `json:"operations"`
	Confidence float64            `json:"confidence"`
}

// HasReference reports whether a coreference or ellipsis operation was applied.
func (r *RewriteResult) HasReference() bool {
	if r == nil {
		return false
	}
	for _, op := range r.Operations {
		if op.Kind == RewriteCoreference || op.Kind == RewriteEllipsis {
			return true
		}
	}
	return false
}
