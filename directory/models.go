package directory

// Profile is the subset of user data other components are allowed to see.
type Profile struct {
	ID       string
	FullName string
	Email    string
}

// Eligibility is the projection of a transcriber's engagement state used to
// decide whether they may receive new proposals.
type Eligibility struct {
	Online       bool
	Available    bool
	Status       string
	CurrentJobID *string
}

// Eligible reports whether the transcriber may be offered a new job: a live
// session, manually available, an active account, and no job currently held.
func (e Eligibility) Eligible() bool {
	return e.Online && e.Available && e.Status == "active" && e.CurrentJobID == nil
}
