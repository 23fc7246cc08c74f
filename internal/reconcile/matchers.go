package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"concilia/internal/leads"
	"concilia/internal/remote"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

// ResolvedCheck is a compliance check row with its natural keys normalized
// and, when the subject id arrived sealed, decrypted.
type ResolvedCheck struct {
	Row        remote.CheckRow
	NationalID id.NationalID
	Phone      id.Phone
	Ref        id.CheckRef
}

// Matcher finds the local leads a check corresponds to. Matchers are tried
// in a fixed order until one returns at least one lead; each returns
// zero-or-more candidates and never a "no match" error.
type Matcher interface {
	Name() string
	Match(ctx context.Context, store remote.Store, check ResolvedCheck) ([]leads.Lead, error)
}

// LeadFinder is the slice of the lead store the matchers need.
type LeadFinder interface {
	FindByNationalID(ctx context.Context, nationalID id.NationalID) ([]leads.Lead, error)
	FindBySubmissionID(ctx context.Context, submissionID string) ([]leads.Lead, error)
	FindByPhone(ctx context.Context, phone id.Phone) ([]leads.Lead, error)
}

// nationalIDMatcher matches on the normalized national-id field. Highest
// precedence: it is exact and tenant-stable.
type nationalIDMatcher struct {
	finder LeadFinder
}

func (m *nationalIDMatcher) Name() string { return "national_id" }

func (m *nationalIDMatcher) Match(ctx context.Context, _ remote.Store, check ResolvedCheck) ([]leads.Lead, error) {
	if check.NationalID.IsEmpty() {
		return nil, nil
	}
	return m.finder.FindByNationalID(ctx, check.NationalID)
}

// submissionMatcher matches on the verification submission identifier
// associated with the check.
type submissionMatcher struct {
	finder LeadFinder
}

func (m *submissionMatcher) Name() string { return "submission_id" }

func (m *submissionMatcher) Match(ctx context.Context, _ remote.Store, check ResolvedCheck) ([]leads.Lead, error) {
	if check.Row.SubmissionID == "" {
		return nil, nil
	}
	return m.finder.FindBySubmissionID(ctx, check.Row.SubmissionID)
}

// phoneMatcher is the fallback: match leads by phone, recovering the number
// from the submissions collection when the check itself carries none.
// Comparison is on the trailing nine digits, tolerant of country/area-code
// variance and gateway decoration.
type phoneMatcher struct {
	finder LeadFinder
	logger *slog.Logger
}

func (m *phoneMatcher) Name() string { return "phone" }

func (m *phoneMatcher) Match(ctx context.Context, store remote.Store, check ResolvedCheck) ([]leads.Lead, error) {
	phone := check.Phone
	if phone.IsEmpty() {
		recovered, err := recoverPhone(ctx, store, check.NationalID)
		if err != nil {
			return nil, err
		}
		phone = recovered
	}
	if phone.IsEmpty() {
		return nil, nil
	}
	return m.finder.FindByPhone(ctx, phone)
}

// recoverPhone looks up the latest verification submission for a national id
// and returns its normalized phone. Absence is not an error.
func recoverPhone(ctx context.Context, store remote.Store, nationalID id.NationalID) (id.Phone, error) {
	if nationalID.IsEmpty() {
		return "", nil
	}
	submission, err := store.FindSubmissionByNationalID(ctx, nationalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return id.NormalizePhone(submission.Phone), nil
}

// defaultMatchers builds the ordered strategy chain.
func defaultMatchers(finder LeadFinder, logger *slog.Logger) []Matcher {
	return []Matcher{
		&nationalIDMatcher{finder: finder},
		&submissionMatcher{finder: finder},
		&phoneMatcher{finder: finder, logger: logger},
	}
}
