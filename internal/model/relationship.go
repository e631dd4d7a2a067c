package model

// RelationshipKind names the structured relationship a transaction belongs to.
type RelationshipKind string

// Relationship kinds. A transaction belongs to at most one.
const (
	RelationshipNone     RelationshipKind = "none"
	RelationshipRefund   RelationshipKind = "refund"
	RelationshipTransfer RelationshipKind = "transfer"
	RelationshipSplit    RelationshipKind = "split"
)

// GroupKind derives the kind of a group from its live members: any split part
// makes it a split group.
func GroupKind(members []Transaction) RelationshipKind {
	if len(members) == 0 {
		return RelationshipNone
	}
	for _, m := range members {
		if m.IsSplit {
			return RelationshipSplit
		}
	}
	return RelationshipTransfer
}

// Relationships is the resolved view of one transaction's relationships.
type Relationships struct {
	Self         Transaction
	Parent       *Transaction
	Children     []Transaction
	GroupMembers []Transaction
	Kind         RelationshipKind
}

// AdvisoryLevel grades a transfer group's net-amount imbalance.
type AdvisoryLevel string

// Advisory levels, from silent to loud.
const (
	AdvisoryNone    AdvisoryLevel = ""
	AdvisoryNotice  AdvisoryLevel = "notice"
	AdvisoryWarning AdvisoryLevel = "warning"
)

// Advisory is attached to successful transfer operations. It never blocks a write.
type Advisory struct {
	Level     AdvisoryLevel
	Message   string
	NetAmount float64
}
