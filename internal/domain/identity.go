package domain

// Identity is the resolved caller: always a session, plus a profile once
// signed in.
type Identity struct {
	SessionID string
	ProfileID *int64
}

func (i Identity) Authenticated() bool {
	return i.ProfileID != nil
}

func AnonymousIdentity(sessionID string) Identity {
	return Identity{SessionID: sessionID}
}

func ProfileIdentity(sessionID string, profileID int64) Identity {
	id := profileID
	return Identity{SessionID: sessionID, ProfileID: &id}
}
