package domain

// CheckID identifies a compliance check row in a remote store. Remote stores
// assign numeric ids; the zero value means "no id".
type CheckID int64

func (id CheckID) IsZero() bool { return id == 0 }

// CheckRef distinguishes store-assigned check identifiers from locally
// synthesized placeholders. Leads are only linked to genuine ids: linking a
// placeholder would pin the lead to an identifier no store can resolve.
type CheckRef struct {
	ID        CheckID
	Synthetic bool
}

// GenuineRef wraps a store-assigned id.
func GenuineRef(id CheckID) CheckRef { return CheckRef{ID: id} }

// SyntheticRef marks an identifier fabricated locally (e.g. a hash of the
// subject id used when the source row carried no id at all).
func SyntheticRef(id CheckID) CheckRef { return CheckRef{ID: id, Synthetic: true} }

// Linkable reports whether the ref may be written to a lead record.
func (r CheckRef) Linkable() bool { return !r.Synthetic && !r.ID.IsZero() }
